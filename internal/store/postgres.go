package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

const userColumns = `id, full_name, email, role, level, department_id, language, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var dept sql.NullString
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.Role, &user.Level, &dept, &user.Language, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	if dept.Valid {
		user.DepartmentID = &dept.String
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

// SystemActor returns the earliest-created active admin, used as the actor
// for automatic escalations.
func (s *PostgresStore) SystemActor(ctx context.Context) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role='admin' AND is_active=true
		ORDER BY created_at ASC
		LIMIT 1
	`)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup system actor: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ActiveUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.collectIDs(ctx, `SELECT id FROM users WHERE is_active=true`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ActiveUserIDsByDepartment(ctx context.Context, departmentID string) ([]string, error) {
	ids, err := s.collectIDs(ctx, `SELECT id FROM users WHERE department_id=$1 AND is_active=true`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department users: %w", err)
	}
	return ids, nil
}

// ActiveUserIDsByMaxLevel returns active users whose authority level is at
// or above the given level (lower number = higher authority).
func (s *PostgresStore) ActiveUserIDsByMaxLevel(ctx context.Context, level int) ([]string, error) {
	ids, err := s.collectIDs(ctx, `SELECT id FROM users WHERE level <= $1 AND is_active=true`, level)
	if err != nil {
		return nil, fmt.Errorf("list users by level: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ActiveContacts(ctx context.Context, userIDs []string) ([]Contact, error) {
	if len(userIDs) == 0 {
		return []Contact{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, language
		FROM users
		WHERE id = ANY($1) AND is_active=true
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0, len(userIDs))
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.Language); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

// ---- incidents ----

const incidentColumns = `id, title, description, incident_type, COALESCE(location, ''), priority, status,
	reporter_id, assigned_to, assigned_department_id, handler_level, escalated_to, escalation_level,
	COALESCE(suggestion_json::text, ''), first_response_at, escalated_at, resolved_at, created_at, updated_at`

func scanIncident(row interface{ Scan(...any) error }) (Incident, error) {
	var item Incident
	var reporter, assignee, dept, escalatedTo sql.NullString
	var firstResponse, escalated, resolved sql.NullTime
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.IncidentType,
		&item.Location,
		&item.Priority,
		&item.Status,
		&reporter,
		&assignee,
		&dept,
		&item.HandlerLevel,
		&escalatedTo,
		&item.EscalationLevel,
		&item.SuggestionJSON,
		&firstResponse,
		&escalated,
		&resolved,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Incident{}, err
	}
	item.ReporterID = nullableString(reporter)
	item.AssignedTo = nullableString(assignee)
	item.AssignedDepartmentID = nullableString(dept)
	item.EscalatedTo = nullableString(escalatedTo)
	item.FirstResponseAt = nullableTime(firstResponse)
	item.EscalatedAt = nullableTime(escalated)
	item.ResolvedAt = nullableTime(resolved)
	return item, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func (s *PostgresStore) InsertIncident(ctx context.Context, item Incident) (Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents (title, description, incident_type, location, priority, reporter_id, assigned_department_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING `+incidentColumns+`
	`, item.Title, item.Description, item.IncidentType, item.Location, item.Priority, item.ReporterID, item.AssignedDepartmentID)
	inserted, err := scanIncident(row)
	if err != nil {
		return Incident{}, fmt.Errorf("insert incident: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetIncident(ctx context.Context, incidentID string) (Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=$1`, incidentID)
	return scanIncident(row)
}

// AutoAssignIncident sets the incident's department and advances status to
// assigned, storing the suggestion payload that drove the decision.
func (s *PostgresStore) AutoAssignIncident(ctx context.Context, incidentID, departmentID, suggestionJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET assigned_department_id=$2, status='assigned', suggestion_json=$3::jsonb, updated_at=NOW()
		WHERE id=$1
	`, incidentID, departmentID, suggestionJSON)
	if err != nil {
		return fmt.Errorf("auto-assign incident: %w", err)
	}
	return nil
}

// SaveIncidentSuggestion stores a below-threshold suggestion for later human
// review without touching lifecycle status.
func (s *PostgresStore) SaveIncidentSuggestion(ctx context.Context, incidentID, suggestionJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET suggestion_json=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, incidentID, suggestionJSON)
	if err != nil {
		return fmt.Errorf("save incident suggestion: %w", err)
	}
	return nil
}

// ---- ideas ----

const ideaColumns = `id, title, description, COALESCE(category, ''), status, submitter_id, department_id,
	handler_level, current_handler_id, escalation_level, COALESCE(escalation_reason, ''), escalated_at, created_at, updated_at`

func scanIdea(row interface{ Scan(...any) error }) (Idea, error) {
	var item Idea
	var submitter, dept, handler sql.NullString
	var escalated sql.NullTime
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.Status,
		&submitter,
		&dept,
		&item.HandlerLevel,
		&handler,
		&item.EscalationLevel,
		&item.EscalationReason,
		&escalated,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Idea{}, err
	}
	item.SubmitterID = nullableString(submitter)
	item.DepartmentID = nullableString(dept)
	item.CurrentHandlerID = nullableString(handler)
	item.EscalatedAt = nullableTime(escalated)
	return item, nil
}

func (s *PostgresStore) InsertIdea(ctx context.Context, item Idea) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ideas (title, description, category, submitter_id, department_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING `+ideaColumns+`
	`, item.Title, item.Description, item.Category, item.SubmitterID, item.DepartmentID)
	inserted, err := scanIdea(row)
	if err != nil {
		return Idea{}, fmt.Errorf("insert idea: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID)
	return scanIdea(row)
}

// ---- audit log ----

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	details := entry.Details
	if details == "" {
		details = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (reference_type, reference_id, action, performed_by, details)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5::jsonb)
	`, entry.ReferenceType, entry.ReferenceID, entry.Action, entry.PerformedBy, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, referenceType, referenceID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_type, reference_id, action, COALESCE(performed_by::text, ''), details::text, created_at
		FROM audit_log
		WHERE reference_type=$1 AND reference_id=$2
		ORDER BY created_at ASC
	`, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var item AuditEntry
		if err := rows.Scan(&item.ID, &item.ReferenceType, &item.ReferenceID, &item.Action, &item.PerformedBy, &item.Details, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return items, nil
}

// ---- escalation history ----

func (s *PostgresStore) ListEscalationHistory(ctx context.Context, referenceType, referenceID string) ([]EscalationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_type, reference_id, from_level, to_level, from_handler_id, to_handler_id,
			reason, is_automatic, COALESCE(escalated_by::text, ''), created_at
		FROM escalation_history
		WHERE reference_type=$1 AND reference_id=$2
		ORDER BY created_at ASC
	`, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list escalation history: %w", err)
	}
	defer rows.Close()

	items := make([]EscalationRecord, 0)
	for rows.Next() {
		var item EscalationRecord
		var from, to sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.ReferenceType,
			&item.ReferenceID,
			&item.FromLevel,
			&item.ToLevel,
			&from,
			&to,
			&item.Reason,
			&item.IsAutomatic,
			&item.EscalatedBy,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan escalation record: %w", err)
		}
		item.FromHandlerID = nullableString(from)
		item.ToHandlerID = nullableString(to)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalation history: %w", err)
	}
	return items, nil
}

// ---- notifications ----

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	metadata := n.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, title_ja, message, message_ja, reference_type, reference_id, action_url, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::uuid, NULLIF($9, ''), $10::jsonb)
	`, n.UserID, n.Type, n.Title, n.TitleJA, n.Message, n.MessageJA, n.ReferenceType, n.ReferenceID, n.ActionURL, metadata)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read=true, read_at=NOW()
		WHERE id=$1 AND user_id=$2 AND is_read=false
	`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read=true, read_at=NOW()
		WHERE user_id=$1 AND is_read=false
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read=false
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, COALESCE(title_ja, ''), message, COALESCE(message_ja, ''),
			COALESCE(reference_type, ''), COALESCE(reference_id::text, ''), COALESCE(action_url, ''),
			metadata::text, is_read, read_at, created_at
		FROM notifications
		WHERE user_id=$1
		  AND ($2::boolean = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		var readAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Type,
			&item.Title,
			&item.TitleJA,
			&item.Message,
			&item.MessageJA,
			&item.ReferenceType,
			&item.ReferenceID,
			&item.ActionURL,
			&item.Metadata,
			&item.IsRead,
			&readAt,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		item.ReadAt = nullableTime(readAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

// ---- device tokens ----

const tokenColumns = `id, user_id, token, COALESCE(device_name, ''), COALESCE(device_platform, ''), is_active, created_at, updated_at`

// UpsertDeviceToken registers a token, reassigning ownership when the same
// token shows up under a different user (device handoff).
func (s *PostgresStore) UpsertDeviceToken(ctx context.Context, userID, token, deviceName, platform string) (DeviceToken, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO user_device_tokens (user_id, token, device_name, device_platform)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (token)
		DO UPDATE SET
			user_id = $1,
			device_name = COALESCE(NULLIF($3, ''), user_device_tokens.device_name),
			device_platform = COALESCE(NULLIF($4, ''), user_device_tokens.device_platform),
			is_active = true,
			updated_at = NOW()
		RETURNING `+tokenColumns+`
	`, userID, token, deviceName, platform)

	var record DeviceToken
	if err := row.Scan(&record.ID, &record.UserID, &record.Token, &record.DeviceName, &record.DevicePlatform, &record.IsActive, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return DeviceToken{}, fmt.Errorf("upsert device token: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) DeactivateDeviceToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_device_tokens SET is_active=false, updated_at=NOW() WHERE token=$1
	`, token)
	if err != nil {
		return fmt.Errorf("deactivate device token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveTokensForUser(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.collectIDs(ctx, `
		SELECT t.token
		FROM user_device_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.user_id=$1 AND t.is_active=true AND u.is_active=true
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tokens: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) ActiveTokensForUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	tokens, err := s.collectIDs(ctx, `
		SELECT t.token
		FROM user_device_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.user_id = ANY($1) AND t.is_active=true AND u.is_active=true
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list tokens for users: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) ActiveTokensForDepartment(ctx context.Context, departmentID string) ([]string, error) {
	tokens, err := s.collectIDs(ctx, `
		SELECT t.token
		FROM user_device_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE u.department_id=$1 AND t.is_active=true AND u.is_active=true
	`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department tokens: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_device_tokens SET is_active=false, updated_at=NOW() WHERE token = ANY($1)
	`, tokens)
	if err != nil {
		return fmt.Errorf("deactivate tokens: %w", err)
	}
	return nil
}

// ---- department assignments ----

// UpsertDepartmentAssignment inserts or overwrites one assignment keyed by
// (incident, department). Batch callers treat each entry independently.
func (s *PostgresStore) UpsertDepartmentAssignment(ctx context.Context, a DepartmentAssignment) (DepartmentAssignment, error) {
	priority := a.Priority
	if priority == "" {
		priority = "medium"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO incident_department_assignments
			(incident_id, department_id, assigned_by, assigned_to, task_description, priority, due_date)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (incident_id, department_id)
		DO UPDATE SET
			assigned_to = EXCLUDED.assigned_to,
			task_description = EXCLUDED.task_description,
			priority = EXCLUDED.priority,
			due_date = EXCLUDED.due_date,
			updated_at = NOW()
		RETURNING id, incident_id, department_id, COALESCE(assigned_by::text, ''), assigned_to,
			COALESCE(task_description, ''), priority, due_date, status, COALESCE(completion_notes, ''), created_at, updated_at
	`, a.IncidentID, a.DepartmentID, a.AssignedBy, a.AssignedTo, a.TaskDescription, priority, a.DueDate)

	var out DepartmentAssignment
	var assignedTo sql.NullString
	var dueDate sql.NullTime
	if err := row.Scan(
		&out.ID,
		&out.IncidentID,
		&out.DepartmentID,
		&out.AssignedBy,
		&assignedTo,
		&out.TaskDescription,
		&out.Priority,
		&dueDate,
		&out.Status,
		&out.CompletionNotes,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return DepartmentAssignment{}, fmt.Errorf("upsert department assignment: %w", err)
	}
	out.AssignedTo = nullableString(assignedTo)
	out.DueDate = nullableTime(dueDate)
	return out, nil
}

// ---- SLA ----

func (s *PostgresStore) ActiveSLAConfigs(ctx context.Context) ([]SLAConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, priority, escalation_time, config_type, is_active
		FROM sla_configurations
		WHERE is_active=true
	`)
	if err != nil {
		return nil, fmt.Errorf("list sla configs: %w", err)
	}
	defer rows.Close()

	configs := make([]SLAConfig, 0)
	for rows.Next() {
		var c SLAConfig
		if err := rows.Scan(&c.ID, &c.EntityType, &c.Priority, &c.EscalationTime, &c.ConfigType, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan sla config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sla configs: %w", err)
	}
	return configs, nil
}

// SweepCandidates returns incidents and ideas that are neither terminal nor
// at their maximum rung. Terminal statuses and max rungs mirror the
// escalation paths.
func (s *PostgresStore) SweepCandidates(ctx context.Context) ([]SweepCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 'incident', priority, handler_level, created_at, first_response_at
		FROM incidents
		WHERE status NOT IN ('resolved', 'closed', 'cancelled') AND handler_level < 4
		UNION ALL
		SELECT id, 'idea', 'medium', handler_level, created_at, NULL
		FROM ideas
		WHERE status NOT IN ('approved', 'rejected', 'implemented') AND handler_level < 3
	`)
	if err != nil {
		return nil, fmt.Errorf("list sweep candidates: %w", err)
	}
	defer rows.Close()

	items := make([]SweepCandidate, 0)
	for rows.Next() {
		var item SweepCandidate
		var firstResponse sql.NullTime
		if err := rows.Scan(&item.ID, &item.Kind, &item.Priority, &item.HandlerLevel, &item.CreatedAt, &firstResponse); err != nil {
			return nil, fmt.Errorf("scan sweep candidate: %w", err)
		}
		item.FirstResponseAt = nullableTime(firstResponse)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep candidates: %w", err)
	}
	return items, nil
}
