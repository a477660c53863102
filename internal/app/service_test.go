package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"smartfactory/api/internal/config"
	"smartfactory/api/internal/enrich"
	"smartfactory/api/internal/escalate"
	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/store"
	"smartfactory/api/internal/suggest"
	"smartfactory/api/internal/task"
)

type fakeStore struct {
	getUserByID              func(ctx context.Context, id string) (store.User, error)
	insertIncident           func(ctx context.Context, item store.Incident) (store.Incident, error)
	getIncident              func(ctx context.Context, id string) (store.Incident, error)
	insertIdea               func(ctx context.Context, item store.Idea) (store.Idea, error)
	getIdea                  func(ctx context.Context, id string) (store.Idea, error)
	listEscalationHistory    func(ctx context.Context, refType, refID string) ([]store.EscalationRecord, error)
	listAuditEntries         func(ctx context.Context, refType, refID string) ([]store.AuditEntry, error)
	listNotifications        func(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, error)
	unreadNotificationCount  func(ctx context.Context, userID string) (int, error)
	markNotificationRead     func(ctx context.Context, id, userID string) (bool, error)
	markAllNotificationsRead func(ctx context.Context, userID string) (int, error)
	ping                     func(ctx context.Context) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByID == nil {
		return store.User{ID: id, IsActive: true}, nil
	}
	return f.getUserByID(ctx, id)
}

func (f *fakeStore) InsertIncident(ctx context.Context, item store.Incident) (store.Incident, error) {
	if f.insertIncident == nil {
		item.ID = "inc-new"
		return item, nil
	}
	return f.insertIncident(ctx, item)
}

func (f *fakeStore) GetIncident(ctx context.Context, id string) (store.Incident, error) {
	if f.getIncident == nil {
		return store.Incident{}, sql.ErrNoRows
	}
	return f.getIncident(ctx, id)
}

func (f *fakeStore) InsertIdea(ctx context.Context, item store.Idea) (store.Idea, error) {
	if f.insertIdea == nil {
		item.ID = "idea-new"
		return item, nil
	}
	return f.insertIdea(ctx, item)
}

func (f *fakeStore) GetIdea(ctx context.Context, id string) (store.Idea, error) {
	if f.getIdea == nil {
		return store.Idea{}, sql.ErrNoRows
	}
	return f.getIdea(ctx, id)
}

func (f *fakeStore) ListEscalationHistory(ctx context.Context, refType, refID string) ([]store.EscalationRecord, error) {
	if f.listEscalationHistory == nil {
		return []store.EscalationRecord{}, nil
	}
	return f.listEscalationHistory(ctx, refType, refID)
}

func (f *fakeStore) ListAuditEntries(ctx context.Context, refType, refID string) ([]store.AuditEntry, error) {
	if f.listAuditEntries == nil {
		return []store.AuditEntry{}, nil
	}
	return f.listAuditEntries(ctx, refType, refID)
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, error) {
	if f.listNotifications == nil {
		return []store.Notification{}, nil
	}
	return f.listNotifications(ctx, userID, unreadOnly, limit, offset)
}

func (f *fakeStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	if f.unreadNotificationCount == nil {
		return 0, nil
	}
	return f.unreadNotificationCount(ctx, userID)
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	if f.markNotificationRead == nil {
		return false, nil
	}
	return f.markNotificationRead(ctx, id, userID)
}

func (f *fakeStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	if f.markAllNotificationsRead == nil {
		return 0, nil
	}
	return f.markAllNotificationsRead(ctx, userID)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

type fakeEngine struct {
	escalate func(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (escalate.Result, error)
	assign   func(ctx context.Context, incidentID, actorID string, assignments []escalate.Assignment) (escalate.BatchResult, error)
}

func (f *fakeEngine) Escalate(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (escalate.Result, error) {
	if f.escalate == nil {
		return escalate.Result{}, nil
	}
	return f.escalate(ctx, kind, itemID, actorID, reason, automatic)
}

func (f *fakeEngine) AssignDepartments(ctx context.Context, incidentID, actorID string, assignments []escalate.Assignment) (escalate.BatchResult, error) {
	if f.assign == nil {
		return escalate.BatchResult{}, nil
	}
	return f.assign(ctx, incidentID, actorID, assignments)
}

type fakeRegistrar struct {
	registered  []string
	deactivated []string
}

func (f *fakeRegistrar) Register(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error) {
	f.registered = append(f.registered, token)
	return store.DeviceToken{UserID: userID, Token: token, IsActive: true}, nil
}

func (f *fakeRegistrar) Deactivate(ctx context.Context, token string) error {
	f.deactivated = append(f.deactivated, token)
	return nil
}

type fakeEnricher struct {
	enqueued  []store.Incident
	onEnqueue func()
}

func (f *fakeEnricher) EnqueueIncident(ctx context.Context, incident store.Incident) {
	f.enqueued = append(f.enqueued, incident)
	if f.onEnqueue != nil {
		f.onEnqueue()
	}
}

func newTestService(fs *fakeStore, fe *fakeEngine, enricher *fakeEnricher) *Service {
	return &Service{
		cfg:      config.Config{},
		store:    fs,
		engine:   fe,
		tokens:   &fakeRegistrar{},
		pipeline: enricher,
	}
}

func TestCreateIncidentLeavesEnrichmentToTransport(t *testing.T) {
	fs := &fakeStore{}
	enricher := &fakeEnricher{}
	svc := newTestService(fs, &fakeEngine{}, enricher)

	incident, err := svc.CreateIncident(context.Background(), "user-1", CreateIncidentInput{
		Title: "Conveyor jam", Priority: "high",
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}

	if incident.ID != "inc-new" {
		t.Fatalf("unexpected incident: %+v", incident)
	}
	if incident.ReporterID == nil || *incident.ReporterID != "user-1" {
		t.Fatalf("expected reporter user-1, got %v", incident.ReporterID)
	}
	if len(enricher.enqueued) != 0 {
		t.Fatalf("expected no enrichment scheduling inside CreateIncident, got %d jobs", len(enricher.enqueued))
	}
}

func TestEnrichmentScheduledAfterResponseWritten(t *testing.T) {
	rr := httptest.NewRecorder()
	bodyAtEnqueue := -1
	enricher := &fakeEnricher{}
	enricher.onEnqueue = func() { bodyAtEnqueue = rr.Body.Len() }
	svc := newTestService(&fakeStore{}, &fakeEngine{}, enricher)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/incidents", strings.NewReader(`{"title":"Jam"}`))
	req.Header.Set("X-User-ID", "user-1")
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(enricher.enqueued) != 1 {
		t.Fatalf("expected 1 enrichment job, got %d", len(enricher.enqueued))
	}
	if bodyAtEnqueue <= 0 {
		t.Fatal("enrichment was scheduled before the response body was written")
	}
}

func TestCreateIncidentValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})

	_, err := svc.CreateIncident(context.Background(), "user-1", CreateIncidentInput{Title: "  "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION error, got %v", err)
	}

	_, err = svc.CreateIncident(context.Background(), "user-1", CreateIncidentInput{Title: "x", Priority: "urgent"})
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION error for unknown priority, got %v", err)
	}
}

func TestEscalateMapsEngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		engineErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", engineErr: escalate.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "max level", engineErr: escalate.ErrMaxEscalation, wantStatus: http.StatusConflict, wantCode: "MAX_ESCALATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := &fakeEngine{
				escalate: func(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (escalate.Result, error) {
					return escalate.Result{}, tt.engineErr
				},
			}
			svc := newTestService(&fakeStore{}, fe, &fakeEnricher{})

			_, err := svc.Escalate(context.Background(), roles.KindIncident, "inc-1", "user-1", "stuck")
			var domainErr *DomainError
			if !errors.As(err, &domainErr) {
				t.Fatalf("expected DomainError, got %v", err)
			}
			if domainErr.Status != tt.wantStatus || domainErr.Code != tt.wantCode {
				t.Fatalf("expected %d/%s, got %d/%s", tt.wantStatus, tt.wantCode, domainErr.Status, domainErr.Code)
			}
		})
	}
}

func TestEscalateRequiresReason(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})

	_, err := svc.Escalate(context.Background(), roles.KindIncident, "inc-1", "user-1", " ")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION error, got %v", err)
	}
}

func TestAssignDepartmentsValidatesInput(t *testing.T) {
	fs := &fakeStore{
		getIncident: func(ctx context.Context, id string) (store.Incident, error) {
			return store.Incident{ID: id}, nil
		},
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	_, err := svc.AssignDepartments(context.Background(), "inc-1", "user-1", nil)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION for empty batch, got %v", err)
	}

	_, err = svc.AssignDepartments(context.Background(), "inc-1", "user-1", []DepartmentAssignmentInput{{}})
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION for missing departmentId, got %v", err)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	fs := &fakeStore{
		markNotificationRead: func(ctx context.Context, id, userID string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	err := svc.MarkNotificationRead(context.Background(), "n-1", "user-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func doRequest(t *testing.T, svc *Service, method, path, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	server := NewHTTPServer(svc, "*")

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response["ok"] != true {
		t.Fatalf("expected ok=true, got %v", response)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStore{
		ping: func(ctx context.Context) error { return errors.New("connection refused") },
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRoutesRequireIdentity(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodPost, "/api/incidents", "", `{"title":"x"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", rr.Code)
	}
}

func TestInactiveUserRejected(t *testing.T) {
	fs := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, IsActive: false}, nil
		},
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodPost, "/api/incidents", "user-gone", `{"title":"x"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user, got %d", rr.Code)
	}
}

func TestCreateAndEscalateIncidentOverHTTP(t *testing.T) {
	escalated := false
	fs := &fakeStore{
		getIncident: func(ctx context.Context, id string) (store.Incident, error) {
			return store.Incident{ID: id, Title: "Jam", HandlerLevel: 1}, nil
		},
	}
	fe := &fakeEngine{
		escalate: func(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (escalate.Result, error) {
			escalated = true
			if kind != roles.KindIncident || itemID != "inc-1" || actorID != "user-1" || automatic {
				t.Fatalf("unexpected escalate call: %v %s %s %v", kind, itemID, actorID, automatic)
			}
			return escalate.Result{ReferenceID: itemID, FromLevel: 1, ToLevel: 2, RungName: "Supervisor"}, nil
		},
	}
	svc := newTestService(fs, fe, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodPost, "/api/incidents", "user-1", `{"title":"Jam","priority":"high"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, svc, http.MethodPost, "/api/incidents/inc-1/escalate", "user-1", `{"reason":"no response"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !escalated {
		t.Fatal("expected engine escalate to be called")
	}

	var result escalate.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("parse escalation result: %v", err)
	}
	if result.ToLevel != 2 || result.RungName != "Supervisor" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type enrichSink struct{}

func (enrichSink) AutoAssignIncident(ctx context.Context, incidentID, departmentID, suggestionJSON string) error {
	return nil
}

func (enrichSink) SaveIncidentSuggestion(ctx context.Context, incidentID, suggestionJSON string) error {
	return nil
}

func (enrichSink) InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error {
	return nil
}

type blockingClassifier struct {
	bodyWritten func() bool
	sawResponse atomic.Bool
	entered     chan struct{}
	release     chan struct{}
}

func (c *blockingClassifier) Configured() bool { return true }

func (c *blockingClassifier) Classify(ctx context.Context, title, description, incidentType string) (*suggest.Suggestion, error) {
	c.sawResponse.Store(c.bodyWritten())
	close(c.entered)
	<-c.release
	return nil, nil
}

// The full creation path with the real pipeline and runner: classification
// may only begin once the caller's response has been written out.
func TestClassificationStartsOnlyAfterResponseReturned(t *testing.T) {
	rr := httptest.NewRecorder()
	classifier := &blockingClassifier{
		bodyWritten: func() bool { return rr.Body.Len() > 0 },
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	runner := task.NewRunner()
	pipeline := enrich.NewPipeline(enrichSink{}, classifier, nil, nil, runner, 0.85)

	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})
	svc.pipeline = pipeline
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/incidents", strings.NewReader(`{"title":"Belt snapped"}`))
	req.Header.Set("X-User-ID", "user-1")
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case <-classifier.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("classification never started")
	}
	close(classifier.release)
	runner.Wait()

	if !classifier.sawResponse.Load() {
		t.Fatal("classification call began before the response was written")
	}
}

func TestNotificationRoutes(t *testing.T) {
	fs := &fakeStore{
		listNotifications: func(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, error) {
			if !unreadOnly {
				t.Fatal("expected unreadOnly filter from query string")
			}
			return []store.Notification{{ID: "n-1", UserID: userID, Title: "t", Message: "m"}}, nil
		},
		unreadNotificationCount: func(ctx context.Context, userID string) (int, error) {
			return 1, nil
		},
		markAllNotificationsRead: func(ctx context.Context, userID string) (int, error) {
			return 3, nil
		},
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodGet, "/api/notifications?unread=true", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list NotificationList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if list.UnreadCount != 1 || len(list.Notifications) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	rr = doRequest(t, svc, http.MethodPost, "/api/notifications/read-all", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var marked map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &marked); err != nil {
		t.Fatalf("parse read-all response: %v", err)
	}
	if marked["markedRead"] != float64(3) {
		t.Fatalf("expected markedRead=3, got %v", marked)
	}
}

func TestNotificationListingResolvesRequesterLocale(t *testing.T) {
	fs := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, IsActive: true, Language: "ja"}, nil
		},
		listNotifications: func(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, error) {
			return []store.Notification{{
				ID:      "n-1",
				UserID:  userID,
				Title:   "Sự cố mới",
				TitleJA: "新しいインシデント",
				Message: "vi body",
			}}, nil
		},
	}
	svc := newTestService(fs, &fakeEngine{}, &fakeEnricher{})

	rr := doRequest(t, svc, http.MethodGet, "/api/notifications", "user-ja", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var decoded struct {
		Notifications []map[string]any `json:"notifications"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(decoded.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(decoded.Notifications))
	}
	if got := decoded.Notifications[0]["title"]; got != "新しいインシデント" {
		t.Fatalf("expected the ja title, got %v", got)
	}
	// The ja body is missing, the vi copy stands in.
	if got := decoded.Notifications[0]["message"]; got != "vi body" {
		t.Fatalf("expected vi fallback body, got %v", got)
	}
	if _, ok := decoded.Notifications[0]["titleJa"]; ok {
		t.Fatal("expected a single resolved title, not both locales")
	}
}

func TestDeviceTokenRoutes(t *testing.T) {
	registrar := &fakeRegistrar{}
	svc := newTestService(&fakeStore{}, &fakeEngine{}, &fakeEnricher{})
	svc.tokens = registrar

	rr := doRequest(t, svc, http.MethodPost, "/api/device-tokens", "user-1", `{"token":"tok-1","devicePlatform":"android"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(registrar.registered) != 1 || registrar.registered[0] != "tok-1" {
		t.Fatalf("expected tok-1 registered, got %v", registrar.registered)
	}

	rr = doRequest(t, svc, http.MethodDelete, "/api/device-tokens/tok-1", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(registrar.deactivated) != 1 || registrar.deactivated[0] != "tok-1" {
		t.Fatalf("expected tok-1 deactivated, got %v", registrar.deactivated)
	}
}
