package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"smartfactory/api/internal/notify"
	"smartfactory/api/internal/search"
	"smartfactory/api/internal/store"
	"smartfactory/api/internal/suggest"
)

type fakeEnrichStore struct {
	autoAssigned    map[string]string // incidentID -> departmentID
	savedSuggestion map[string]string // incidentID -> payload
	audits          []store.AuditEntry
	autoAssignErr   error
}

func newFakeEnrichStore() *fakeEnrichStore {
	return &fakeEnrichStore{
		autoAssigned:    map[string]string{},
		savedSuggestion: map[string]string{},
	}
}

func (f *fakeEnrichStore) AutoAssignIncident(ctx context.Context, incidentID, departmentID, suggestionJSON string) error {
	if f.autoAssignErr != nil {
		return f.autoAssignErr
	}
	f.autoAssigned[incidentID] = departmentID
	return nil
}

func (f *fakeEnrichStore) SaveIncidentSuggestion(ctx context.Context, incidentID, suggestionJSON string) error {
	f.savedSuggestion[incidentID] = suggestionJSON
	return nil
}

func (f *fakeEnrichStore) InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error {
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeEnrichStore) auditActions() []string {
	actions := make([]string, 0, len(f.audits))
	for _, entry := range f.audits {
		actions = append(actions, entry.Action)
	}
	return actions
}

type fakeClassifier struct {
	suggestion *suggest.Suggestion
}

func (f *fakeClassifier) Configured() bool { return true }

func (f *fakeClassifier) Classify(ctx context.Context, title, description, incidentType string) (*suggest.Suggestion, error) {
	return f.suggestion, nil
}

type fakeSearcher struct {
	similar []search.Result
	indexed []search.IncidentRecord
}

func (f *fakeSearcher) SimilarIncidents(text string, limit int) search.Response {
	return search.Response{Results: f.similar, Total: len(f.similar)}
}

func (f *fakeSearcher) IndexIncident(record search.IncidentRecord) {
	f.indexed = append(f.indexed, record)
}

type fakePipelineNotifier struct {
	events    []notify.Event
	audiences []notify.Audience
}

func (f *fakePipelineNotifier) Dispatch(ctx context.Context, audience notify.Audience, event notify.Event) (notify.Result, error) {
	f.events = append(f.events, event)
	f.audiences = append(f.audiences, audience)
	return notify.Result{}, nil
}

func TestProcessAutoAssignsAboveThreshold(t *testing.T) {
	s := newFakeEnrichStore()
	classifier := &fakeClassifier{suggestion: &suggest.Suggestion{
		DepartmentID: "dept-maint", DepartmentCode: "MAINT", Confidence: 0.9,
	}}
	searcher := &fakeSearcher{}
	notifier := &fakePipelineNotifier{}
	pipeline := NewPipeline(s, classifier, searcher, notifier, nil, 0.85)

	incident := store.Incident{ID: "inc-1", Title: "Oil leak", Priority: "high"}
	pipeline.Process(context.Background(), incident)

	if s.autoAssigned["inc-1"] != "dept-maint" {
		t.Fatalf("expected auto-assignment to dept-maint, got %v", s.autoAssigned)
	}
	if _, saved := s.savedSuggestion["inc-1"]; saved {
		t.Fatal("expected no pending suggestion when auto-assigned")
	}

	actions := s.auditActions()
	if len(actions) != 1 || actions[0] != "ai_auto_assigned" {
		t.Fatalf("expected only an ai_auto_assigned audit, got %v", actions)
	}

	if len(notifier.audiences) != 1 {
		t.Fatalf("expected one leadership alert, got %d", len(notifier.audiences))
	}
	if notifier.audiences[0].DepartmentID != "dept-maint" {
		t.Fatalf("expected alert scoped to assigned department, got %+v", notifier.audiences[0])
	}
	if notifier.audiences[0].MinLevel == 0 {
		t.Fatal("expected alert to include leadership levels")
	}
}

func TestProcessStoresSuggestionBelowThreshold(t *testing.T) {
	s := newFakeEnrichStore()
	classifier := &fakeClassifier{suggestion: &suggest.Suggestion{
		DepartmentID: "dept-qc", Confidence: 0.5,
	}}
	pipeline := NewPipeline(s, classifier, &fakeSearcher{}, &fakePipelineNotifier{}, nil, 0.85)

	pipeline.Process(context.Background(), store.Incident{ID: "inc-2", Title: "Scratch on panel"})

	if len(s.autoAssigned) != 0 {
		t.Fatalf("expected no auto-assignment at confidence 0.5, got %v", s.autoAssigned)
	}
	payload, saved := s.savedSuggestion["inc-2"]
	if !saved {
		t.Fatal("expected suggestion to be stored for human review")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("stored suggestion is not JSON: %v", err)
	}
	if decoded["departmentId"] != "dept-qc" {
		t.Fatalf("unexpected stored suggestion: %v", decoded)
	}

	actions := s.auditActions()
	if len(actions) != 1 || actions[0] != "rag_processed" {
		t.Fatalf("expected only rag_processed audit, got %v", actions)
	}
}

func TestProcessSurvivesClassifierSilence(t *testing.T) {
	s := newFakeEnrichStore()
	classifier := &fakeClassifier{suggestion: nil} // degraded service
	searcher := &fakeSearcher{}
	notifier := &fakePipelineNotifier{}
	pipeline := NewPipeline(s, classifier, searcher, notifier, nil, 0.85)

	pipeline.Process(context.Background(), store.Incident{ID: "inc-3", Title: "Noise from motor"})

	if len(s.autoAssigned) != 0 || len(s.savedSuggestion) != 0 {
		t.Fatal("expected no writes from a silent classifier")
	}
	if len(searcher.indexed) != 1 {
		t.Fatal("expected incident to still be indexed for search")
	}
	if len(notifier.events) != 1 {
		t.Fatal("expected leadership alert despite classifier silence")
	}
}

func TestProcessAuditIncludesSimilarIncidents(t *testing.T) {
	s := newFakeEnrichStore()
	classifier := &fakeClassifier{suggestion: &suggest.Suggestion{DepartmentID: "dept-1", Confidence: 0.3}}
	searcher := &fakeSearcher{similar: []search.Result{
		{ID: "inc-old-1", Type: search.ResultIncident},
		{ID: "inc-4", Type: search.ResultIncident}, // the incident itself, excluded
	}}
	pipeline := NewPipeline(s, classifier, searcher, &fakePipelineNotifier{}, nil, 0.85)

	pipeline.Process(context.Background(), store.Incident{ID: "inc-4", Title: "Jam"})

	if len(s.audits) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(s.audits))
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(s.audits[0].Details), &details); err != nil {
		t.Fatalf("audit details not JSON: %v", err)
	}
	similar, ok := details["similarIncidents"].([]any)
	if !ok || len(similar) != 1 || similar[0] != "inc-old-1" {
		t.Fatalf("expected similarIncidents [inc-old-1], got %v", details["similarIncidents"])
	}
}

type gatedClassifier struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClassifier) Configured() bool { return true }

func (g *gatedClassifier) Classify(ctx context.Context, title, description, incidentType string) (*suggest.Suggestion, error) {
	close(g.entered)
	<-g.release
	return nil, nil
}

func TestEnqueueIncidentNeverRunsOnTheCallerGoroutine(t *testing.T) {
	classifier := &gatedClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	pipeline := NewPipeline(newFakeEnrichStore(), classifier, &fakeSearcher{}, &fakePipelineNotifier{}, nil, 0.85)

	done := make(chan struct{})
	go func() {
		pipeline.EnqueueIncident(context.Background(), store.Incident{ID: "inc-6", Title: "Smoke near press"})
		close(done)
	}()

	// Even without a runner the enqueue must return while the classifier
	// is still blocked.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnqueueIncident blocked on the classification call")
	}

	select {
	case <-classifier.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("enrichment never started in the background")
	}
	close(classifier.release)
}

func TestProcessAutoAssignFailureLeavesNoAudit(t *testing.T) {
	s := newFakeEnrichStore()
	s.autoAssignErr = errors.New("db down")
	classifier := &fakeClassifier{suggestion: &suggest.Suggestion{DepartmentID: "dept-1", Confidence: 0.95}}
	pipeline := NewPipeline(s, classifier, &fakeSearcher{}, &fakePipelineNotifier{}, nil, 0.85)

	pipeline.Process(context.Background(), store.Incident{ID: "inc-5", Title: "Leak"})

	for _, action := range s.auditActions() {
		if action == "ai_auto_assigned" {
			t.Fatal("expected no ai_auto_assigned audit when the assignment write failed")
		}
	}
}
