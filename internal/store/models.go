package store

import "time"

type User struct {
	ID           string
	FullName     string
	Email        string
	Role         string
	Level        int
	DepartmentID *string
	Language     string
	IsActive     bool
	CreatedAt    time.Time
}

type Department struct {
	ID        string
	Name      string
	Code      string
	CreatedAt time.Time
}

type Incident struct {
	ID                   string
	Title                string
	Description          string
	IncidentType         string
	Location             string
	Priority             string
	Status               string
	ReporterID           *string
	AssignedTo           *string
	AssignedDepartmentID *string
	HandlerLevel         int
	EscalatedTo          *string
	EscalationLevel      int
	SuggestionJSON       string
	FirstResponseAt      *time.Time
	EscalatedAt          *time.Time
	ResolvedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Idea struct {
	ID               string
	Title            string
	Description      string
	Category         string
	Status           string
	SubmitterID      *string
	DepartmentID     *string
	HandlerLevel     int
	CurrentHandlerID *string
	EscalationLevel  int
	EscalationReason string
	EscalatedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EscalationRecord is one immutable row of escalation_history.
type EscalationRecord struct {
	ID            string
	ReferenceType string
	ReferenceID   string
	FromLevel     int
	ToLevel       int
	FromHandlerID *string
	ToHandlerID   *string
	Reason        string
	IsAutomatic   bool
	EscalatedBy   string
	CreatedAt     time.Time
}

// AuditEntry is one human-readable audit_log row for an item.
type AuditEntry struct {
	ID            string
	ReferenceType string
	ReferenceID   string
	Action        string
	PerformedBy   string
	Details       string // JSON
	CreatedAt     time.Time
}

type Notification struct {
	ID            string
	UserID        string
	Type          string
	Title         string
	TitleJA       string
	Message       string
	MessageJA     string
	ReferenceType string
	ReferenceID   string
	ActionURL     string
	Metadata      string // JSON
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}

type DeviceToken struct {
	ID             string
	UserID         string
	Token          string
	DeviceName     string
	DevicePlatform string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DepartmentAssignment struct {
	ID              string
	IncidentID      string
	DepartmentID    string
	AssignedBy      string
	AssignedTo      *string
	TaskDescription string
	Priority        string
	DueDate         *time.Time
	Status          string
	CompletionNotes string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SLAConfig struct {
	ID             string
	EntityType     string
	Priority       string
	EscalationTime int // minutes
	ConfigType     string // "created" or "response"
	IsActive       bool
}

// SweepCandidate is a non-terminal item as seen by the SLA sweep, with the
// fields needed to evaluate elapsed time against a threshold.
type SweepCandidate struct {
	ID              string
	Kind            string
	Priority        string
	HandlerLevel    int
	CreatedAt       time.Time
	FirstResponseAt *time.Time
}

// Contact carries what the notification channels need to know about a
// recipient beyond their id.
type Contact struct {
	ID       string
	Email    string
	Language string
}
