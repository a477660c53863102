package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"smartfactory/api/internal/config"
	"smartfactory/api/internal/escalate"
	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/search"
	"smartfactory/api/internal/store"
	"smartfactory/api/internal/tokens"
)

type CreateIncidentInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	IncidentType string `json:"incidentType"`
	Location     string `json:"location"`
	Priority     string `json:"priority"`
	DepartmentID string `json:"departmentId"`
}

type CreateIdeaInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	DepartmentID string `json:"departmentId"`
}

type EscalateInput struct {
	Reason string `json:"reason"`
}

type DepartmentAssignmentInput struct {
	DepartmentID    string  `json:"departmentId"`
	AssignedTo      *string `json:"assignedTo"`
	TaskDescription string  `json:"taskDescription"`
	Priority        string  `json:"priority"`
}

type RegisterTokenInput struct {
	Token          string `json:"token"`
	DeviceName     string `json:"deviceName"`
	DevicePlatform string `json:"devicePlatform"`
}

// ItemHistory bundles the escalation chain and audit trail of one item.
type ItemHistory struct {
	Escalations []store.EscalationRecord `json:"escalations"`
	Audit       []store.AuditEntry       `json:"audit"`
}

type NotificationList struct {
	Notifications []store.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

var allowedPriorities = map[string]struct{}{
	"low":      {},
	"medium":   {},
	"high":     {},
	"critical": {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	InsertIncident(context.Context, store.Incident) (store.Incident, error)
	GetIncident(context.Context, string) (store.Incident, error)
	InsertIdea(context.Context, store.Idea) (store.Idea, error)
	GetIdea(context.Context, string) (store.Idea, error)
	ListEscalationHistory(context.Context, string, string) ([]store.EscalationRecord, error)
	ListAuditEntries(context.Context, string, string) ([]store.AuditEntry, error)
	ListNotifications(context.Context, string, bool, int, int) ([]store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
	MarkNotificationRead(context.Context, string, string) (bool, error)
	MarkAllNotificationsRead(context.Context, string) (int, error)
	Ping(ctx context.Context) error
}

type escalationEngine interface {
	Escalate(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (escalate.Result, error)
	AssignDepartments(ctx context.Context, incidentID, actorID string, assignments []escalate.Assignment) (escalate.BatchResult, error)
}

type tokenRegistrar interface {
	Register(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
}

type enricher interface {
	EnqueueIncident(ctx context.Context, incident store.Incident)
}

type searchService interface {
	SimilarIncidents(text string, limit int) search.Response
	IndexIdea(record search.IdeaRecord)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	engine   escalationEngine
	tokens   tokenRegistrar
	pipeline enricher
	search   searchService
}

func New(cfg config.Config, dataStore *store.PostgresStore, engine *escalate.Engine, registrar tokenRegistrar, pipeline enricher, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		engine:   engine,
		tokens:   registrar,
		pipeline: pipeline,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResolveUser loads the acting user, used by the HTTP layer to validate the
// caller's identity header.
func (s *Service) ResolveUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unknown user", nil)
	}
	if err != nil {
		return store.User{}, err
	}
	if !user.IsActive {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "User is inactive", nil)
	}
	return user, nil
}

// CreateIncident validates and stores the report. It deliberately does not
// start enrichment, that is EnqueueEnrichment's job once the response is out.
func (s *Service) CreateIncident(ctx context.Context, actorID string, input CreateIncidentInput) (store.Incident, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Incident{}, domainError(http.StatusBadRequest, "VALIDATION", "Title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = "medium"
	}
	if _, ok := allowedPriorities[priority]; !ok {
		return store.Incident{}, domainError(http.StatusBadRequest, "VALIDATION", "Unknown priority", map[string]any{"priority": priority})
	}
	incidentType := input.IncidentType
	if incidentType == "" {
		incidentType = "other"
	}

	incident := store.Incident{
		Title:        title,
		Description:  input.Description,
		IncidentType: incidentType,
		Location:     input.Location,
		Priority:     priority,
		ReporterID:   &actorID,
	}
	if input.DepartmentID != "" {
		incident.AssignedDepartmentID = &input.DepartmentID
	}

	return s.store.InsertIncident(ctx, incident)
}

// EnqueueEnrichment hands a freshly created incident to the background
// pipeline. The HTTP layer calls this after the response has been flushed,
// so the reporter never waits on classification.
func (s *Service) EnqueueEnrichment(ctx context.Context, incident store.Incident) {
	if s.pipeline != nil {
		s.pipeline.EnqueueIncident(ctx, incident)
	}
}

func (s *Service) GetIncident(ctx context.Context, incidentID string) (store.Incident, error) {
	incident, err := s.store.GetIncident(ctx, incidentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Incident{}, domainError(http.StatusNotFound, "NOT_FOUND", "Incident not found", nil)
	}
	return incident, err
}

func (s *Service) CreateIdea(ctx context.Context, actorID string, input CreateIdeaInput) (store.Idea, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Idea{}, domainError(http.StatusBadRequest, "VALIDATION", "Title is required", nil)
	}

	idea := store.Idea{
		Title:       title,
		Description: input.Description,
		Category:    input.Category,
		SubmitterID: &actorID,
	}
	if input.DepartmentID != "" {
		idea.DepartmentID = &input.DepartmentID
	}

	created, err := s.store.InsertIdea(ctx, idea)
	if err != nil {
		return store.Idea{}, err
	}
	if s.search != nil {
		s.search.IndexIdea(search.IdeaRecord{
			ID:           created.ID,
			Title:        created.Title,
			Description:  created.Description,
			Category:     created.Category,
			DepartmentID: input.DepartmentID,
			Status:       created.Status,
		})
	}
	return created, nil
}

func (s *Service) GetIdea(ctx context.Context, ideaID string) (store.Idea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Idea{}, domainError(http.StatusNotFound, "NOT_FOUND", "Idea not found", nil)
	}
	return idea, err
}

// Escalate moves an item one rung up its chain on behalf of actorID.
func (s *Service) Escalate(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string) (escalate.Result, error) {
	if strings.TrimSpace(reason) == "" {
		return escalate.Result{}, domainError(http.StatusBadRequest, "VALIDATION", "Escalation reason is required", nil)
	}

	result, err := s.engine.Escalate(ctx, kind, itemID, actorID, reason, false)
	if errors.Is(err, escalate.ErrNotFound) {
		return escalate.Result{}, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	if errors.Is(err, escalate.ErrMaxEscalation) {
		return escalate.Result{}, domainError(http.StatusConflict, "MAX_ESCALATION", "Item is already at the highest escalation level", nil)
	}
	return result, err
}

func (s *Service) AssignDepartments(ctx context.Context, incidentID, actorID string, inputs []DepartmentAssignmentInput) (escalate.BatchResult, error) {
	if len(inputs) == 0 {
		return escalate.BatchResult{}, domainError(http.StatusBadRequest, "VALIDATION", "At least one department is required", nil)
	}

	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return escalate.BatchResult{}, err
	}

	assignments := make([]escalate.Assignment, 0, len(inputs))
	for _, input := range inputs {
		if input.DepartmentID == "" {
			return escalate.BatchResult{}, domainError(http.StatusBadRequest, "VALIDATION", "departmentId is required for every assignment", nil)
		}
		assignments = append(assignments, escalate.Assignment{
			DepartmentID:    input.DepartmentID,
			AssignedTo:      input.AssignedTo,
			TaskDescription: input.TaskDescription,
			Priority:        input.Priority,
		})
	}
	return s.engine.AssignDepartments(ctx, incidentID, actorID, assignments)
}

// ItemHistory returns the escalation and audit history of one item.
func (s *Service) ItemHistory(ctx context.Context, kind roles.ItemKind, itemID string) (ItemHistory, error) {
	switch kind {
	case roles.KindIncident:
		if _, err := s.GetIncident(ctx, itemID); err != nil {
			return ItemHistory{}, err
		}
	case roles.KindIdea:
		if _, err := s.GetIdea(ctx, itemID); err != nil {
			return ItemHistory{}, err
		}
	}

	escalations, err := s.store.ListEscalationHistory(ctx, string(kind), itemID)
	if err != nil {
		return ItemHistory{}, err
	}
	audit, err := s.store.ListAuditEntries(ctx, string(kind), itemID)
	if err != nil {
		return ItemHistory{}, err
	}
	return ItemHistory{Escalations: escalations, Audit: audit}, nil
}

func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) (NotificationList, error) {
	notifications, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return NotificationList{}, err
	}
	unread, err := s.store.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return NotificationList{}, err
	}
	return NotificationList{Notifications: notifications, UnreadCount: unread}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	marked, err := s.store.MarkNotificationRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !marked {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) RegisterDeviceToken(ctx context.Context, userID string, input RegisterTokenInput) (store.DeviceToken, error) {
	record, err := s.tokens.Register(ctx, userID, input.Token, input.DeviceName, input.DevicePlatform)
	if errors.Is(err, tokens.ErrTokenRequired) {
		return store.DeviceToken{}, domainError(http.StatusBadRequest, "VALIDATION", "Device token is required", nil)
	}
	return record, err
}

func (s *Service) RemoveDeviceToken(ctx context.Context, token string) error {
	err := s.tokens.Deactivate(ctx, token)
	if errors.Is(err, tokens.ErrTokenRequired) {
		return domainError(http.StatusBadRequest, "VALIDATION", "Device token is required", nil)
	}
	return err
}

// SimilarIncidents surfaces likely duplicates for an in-progress report.
func (s *Service) SimilarIncidents(ctx context.Context, query string, limit int) (search.Response, error) {
	if strings.TrimSpace(query) == "" {
		return search.Response{}, domainError(http.StatusBadRequest, "VALIDATION", "Query text is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.SimilarIncidents(query, limit), nil
}
