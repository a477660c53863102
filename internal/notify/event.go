package notify

// Event is one notification to fan out. Vietnamese strings are the primary
// copy, the JA variants are optional and fall back to the primary when empty.
type Event struct {
	Type          string
	Title         string
	TitleJA       string
	Message       string
	MessageJA     string
	ReferenceType string
	ReferenceID   string
	ActionURL     string
	Metadata      map[string]string
}

func (e Event) titleFor(language string) string {
	if language == "ja" && e.TitleJA != "" {
		return e.TitleJA
	}
	return e.Title
}

func (e Event) messageFor(language string) string {
	if language == "ja" && e.MessageJA != "" {
		return e.MessageJA
	}
	return e.Message
}

// Audience selects who receives an event. Selectors combine, the expanded
// recipient set is the deduplicated union.
type Audience struct {
	UserIDs      []string
	DepartmentID string
	MinLevel     int // 0 = unused; otherwise users at this authority level or higher
	Everyone     bool
}
