package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Suggestion is the classifier's verdict for one incident.
type Suggestion struct {
	DepartmentID   string  `json:"departmentId"`
	DepartmentCode string  `json:"departmentCode"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

type classifyRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	IncidentType string `json:"incidentType"`
}

// Client calls the external classification service. The service is an
// optional enrichment, every failure mode degrades to "no suggestion"
// rather than an error so callers never block on it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Classify asks the service which department should own the incident.
// Returns (nil, nil) when the service is unreachable, slow, or answers
// with anything but 200.
func (c *Client) Classify(ctx context.Context, title, description, incidentType string) (*Suggestion, error) {
	if !c.Configured() {
		return nil, nil
	}

	payload, err := json.Marshal(classifyRequest{
		Title:        title,
		Description:  description,
		IncidentType: incidentType,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/suggest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("suggest: classify request failed: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("suggest: classify returned status %d", resp.StatusCode)
		return nil, nil
	}

	var suggestion Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		log.Printf("suggest: decode classify response: %v", err)
		return nil, nil
	}
	return &suggestion, nil
}
