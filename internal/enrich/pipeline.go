package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"smartfactory/api/internal/notify"
	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/search"
	"smartfactory/api/internal/store"
	"smartfactory/api/internal/suggest"
)

type enrichStore interface {
	AutoAssignIncident(ctx context.Context, incidentID, departmentID, suggestionJSON string) error
	SaveIncidentSuggestion(ctx context.Context, incidentID, suggestionJSON string) error
	InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error
}

type classifier interface {
	Configured() bool
	Classify(ctx context.Context, title, description, incidentType string) (*suggest.Suggestion, error)
}

type similarSearcher interface {
	SimilarIncidents(text string, limit int) search.Response
	IndexIncident(record search.IncidentRecord)
}

type notifier interface {
	Dispatch(ctx context.Context, audience notify.Audience, event notify.Event) (notify.Result, error)
}

type taskRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context))
}

// Pipeline enriches freshly reported incidents in the background. The
// reporting request returns immediately, classification, duplicate lookup,
// and leadership alerts all happen here, after the response.
type Pipeline struct {
	store      enrichStore
	classifier classifier
	searcher   similarSearcher
	notifier   notifier
	runner     taskRunner
	threshold  float64
}

func NewPipeline(s enrichStore, c classifier, searcher similarSearcher, n notifier, r taskRunner, threshold float64) *Pipeline {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &Pipeline{store: s, classifier: c, searcher: searcher, notifier: n, runner: r, threshold: threshold}
}

// EnqueueIncident schedules enrichment for an incident that was just
// created. It never does the work on the calling goroutine, and the request
// context is detached so enrichment outlives the HTTP response.
func (p *Pipeline) EnqueueIncident(ctx context.Context, incident store.Incident) {
	detached := context.WithoutCancel(ctx)
	if p.runner == nil {
		go p.Process(detached, incident)
		return
	}
	p.runner.Go(detached, "enrich-incident", func(ctx context.Context) {
		p.Process(ctx, incident)
	})
}

// Process runs the full enrichment pass for one incident. Every stage
// degrades independently, a dead classifier still leaves the incident
// indexed and leadership notified.
func (p *Pipeline) Process(ctx context.Context, incident store.Incident) {
	if p.searcher != nil {
		p.searcher.IndexIncident(search.IncidentRecord{
			ID:           incident.ID,
			Title:        incident.Title,
			Description:  incident.Description,
			IncidentType: incident.IncidentType,
			DepartmentID: derefOrEmpty(incident.AssignedDepartmentID),
			Status:       incident.Status,
			Priority:     incident.Priority,
		})
	}

	similarIDs := p.findSimilar(incident)
	assignedDepartment := p.classify(ctx, incident, similarIDs)
	p.alertLeadership(ctx, incident, assignedDepartment)
}

func (p *Pipeline) findSimilar(incident store.Incident) []string {
	if p.searcher == nil {
		return nil
	}
	response := p.searcher.SimilarIncidents(incident.Title+" "+incident.Description, 5)
	ids := make([]string, 0, len(response.Results))
	for _, result := range response.Results {
		if result.ID != incident.ID {
			ids = append(ids, result.ID)
		}
	}
	return ids
}

// classify asks the external service for a department and applies the
// confidence threshold: high confidence auto-assigns, anything lower is
// stored for a human to confirm. Returns the auto-assigned department id,
// empty when no assignment happened.
func (p *Pipeline) classify(ctx context.Context, incident store.Incident, similarIDs []string) string {
	if p.classifier == nil || !p.classifier.Configured() {
		return ""
	}

	suggestion, err := p.classifier.Classify(ctx, incident.Title, incident.Description, incident.IncidentType)
	if err != nil {
		log.Printf("enrich: classify incident %s: %v", incident.ID, err)
		return ""
	}
	if suggestion == nil {
		return ""
	}

	payload, err := json.Marshal(map[string]any{
		"departmentId":     suggestion.DepartmentID,
		"departmentCode":   suggestion.DepartmentCode,
		"confidence":       suggestion.Confidence,
		"reasoning":        suggestion.Reasoning,
		"similarIncidents": similarIDs,
	})
	if err != nil {
		log.Printf("enrich: marshal suggestion for %s: %v", incident.ID, err)
		return ""
	}

	if suggestion.Confidence >= p.threshold && suggestion.DepartmentID != "" {
		if err := p.store.AutoAssignIncident(ctx, incident.ID, suggestion.DepartmentID, string(payload)); err != nil {
			log.Printf("enrich: auto-assign incident %s: %v", incident.ID, err)
			return ""
		}
		p.audit(ctx, incident.ID, "ai_auto_assigned", map[string]any{
			"departmentId": suggestion.DepartmentID,
			"confidence":   suggestion.Confidence,
			"status":       "assigned",
		})
		return suggestion.DepartmentID
	}

	// Below the threshold the suggestion is parked for a human decision and
	// the pass is recorded as processed-but-not-assigned.
	if err := p.store.SaveIncidentSuggestion(ctx, incident.ID, string(payload)); err != nil {
		log.Printf("enrich: save suggestion for %s: %v", incident.ID, err)
	}
	p.audit(ctx, incident.ID, "rag_processed", map[string]any{
		"departmentId":     suggestion.DepartmentID,
		"confidence":       suggestion.Confidence,
		"similarIncidents": similarIDs,
	})
	return ""
}

// alertLeadership tells managers and above about the new incident, scoped
// to the assigned department when one is known.
func (p *Pipeline) alertLeadership(ctx context.Context, incident store.Incident, assignedDepartment string) {
	if p.notifier == nil {
		return
	}

	audience := notify.Audience{MinLevel: roles.LevelManager}
	if assignedDepartment != "" {
		audience.DepartmentID = assignedDepartment
	} else if incident.AssignedDepartmentID != nil {
		audience.DepartmentID = *incident.AssignedDepartmentID
	}

	event := notify.Event{
		Type:          "incident_created",
		Title:         fmt.Sprintf("Sự cố mới: %s", incident.Title),
		TitleJA:       fmt.Sprintf("新しいインシデント: %s", incident.Title),
		Message:       incident.Description,
		ReferenceType: string(roles.KindIncident),
		ReferenceID:   incident.ID,
		Metadata:      map[string]string{"priority": incident.Priority},
	}
	if _, err := p.notifier.Dispatch(ctx, audience, event); err != nil {
		log.Printf("enrich: alert leadership for %s: %v", incident.ID, err)
	}
}

func (p *Pipeline) audit(ctx context.Context, incidentID, action string, details map[string]any) {
	raw, _ := json.Marshal(details)
	if err := p.store.InsertAuditEntry(ctx, store.AuditEntry{
		ReferenceType: string(roles.KindIncident),
		ReferenceID:   incidentID,
		Action:        action,
		Details:       string(raw),
	}); err != nil {
		log.Printf("enrich: audit %s for %s: %v", action, incidentID, err)
	}
}

func derefOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
