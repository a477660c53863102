package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIncident ResultType = "incident"
	ResultIdea     ResultType = "idea"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	DepartmentID string     `json:"departmentId,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text               string
	FilterType         ResultType // empty = all types
	FilterDepartmentID string
	Limit              int
	Offset             int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// IncidentRecord is the data we index for an incident.
type IncidentRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	IncidentType string `json:"incidentType"`
	DepartmentID string `json:"departmentId"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
}

// IdeaRecord is the data we index for an improvement idea.
type IdeaRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	DepartmentID string `json:"departmentId"`
	Status       string `json:"status"`
}
