package escalate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"smartfactory/api/internal/notify"
	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/store"
)

var (
	ErrNotFound      = errors.New("item not found")
	ErrMaxEscalation = errors.New("item is already at the highest escalation level")
)

// Result describes one completed escalation.
type Result struct {
	ReferenceType string      `json:"referenceType"`
	ReferenceID   string      `json:"referenceId"`
	ItemTitle     string      `json:"-"`
	FromLevel     int         `json:"fromLevel"`
	ToLevel       int         `json:"toLevel"`
	RungName      string      `json:"rungName"`
	Handler       *store.User `json:"-"`
	HandlerID     string      `json:"handlerId,omitempty"`
	IsAutomatic   bool        `json:"isAutomatic"`
}

// Assignment is one department's slice of a multi-department incident.
type Assignment struct {
	DepartmentID    string
	AssignedTo      *string
	TaskDescription string
	Priority        string
}

// BatchResult reports a best-effort multi-department assignment. Entries
// fail independently, one bad department does not undo the others.
type BatchResult struct {
	Assigned []store.DepartmentAssignment `json:"assigned"`
	Failed   []AssignmentError            `json:"failed"`
}

type AssignmentError struct {
	DepartmentID string `json:"departmentId"`
	Error        string `json:"error"`
}

type engineStore interface {
	InTx(ctx context.Context, fn func(q store.Queries) error) error
	GetIncident(ctx context.Context, incidentID string) (store.Incident, error)
	UpsertDepartmentAssignment(ctx context.Context, a store.DepartmentAssignment) (store.DepartmentAssignment, error)
	InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error
}

type notifier interface {
	Dispatch(ctx context.Context, audience notify.Audience, event notify.Event) (notify.Result, error)
}

type taskRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context))
}

// Engine moves incidents and ideas up their escalation chains. The state
// change, history row, and audit row commit as one transaction, notification
// fan-out happens after commit and never blocks or fails the escalation.
type Engine struct {
	store    engineStore
	notifier notifier
	runner   taskRunner
}

func NewEngine(s engineStore, n notifier, r taskRunner) *Engine {
	return &Engine{store: s, notifier: n, runner: r}
}

// Escalate advances one item to the next rung of its chain. actorID is
// empty for automatic escalations driven by the SLA sweep.
func (e *Engine) Escalate(ctx context.Context, kind roles.ItemKind, itemID, actorID, reason string, automatic bool) (Result, error) {
	var result Result

	err := e.store.InTx(ctx, func(q store.Queries) error {
		current, fromHandler, departmentID, itemTitle, err := loadItem(ctx, q, kind, itemID)
		if err != nil {
			return err
		}

		next := current + 1
		if next > roles.MaxRung(kind) {
			return ErrMaxEscalation
		}
		rung, ok := roles.RungAt(kind, next)
		if !ok {
			return ErrMaxEscalation
		}

		handler, err := q.FindHandler(ctx, string(rung.Role), departmentID)
		if err != nil {
			return err
		}
		var handlerID *string
		if handler != nil {
			handlerID = &handler.ID
		}

		switch kind {
		case roles.KindIncident:
			if err := q.ApplyIncidentEscalation(ctx, itemID, next, handlerID); err != nil {
				return err
			}
		case roles.KindIdea:
			if err := q.ApplyIdeaEscalation(ctx, itemID, next, handlerID, reason); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown item kind %q", kind)
		}

		if err := q.InsertEscalationRecord(ctx, store.EscalationRecord{
			ReferenceType: string(kind),
			ReferenceID:   itemID,
			FromLevel:     current,
			ToLevel:       next,
			FromHandlerID: fromHandler,
			ToHandlerID:   handlerID,
			Reason:        reason,
			IsAutomatic:   automatic,
			EscalatedBy:   actorID,
		}); err != nil {
			return err
		}

		handlerName := "Unassigned"
		if handler != nil {
			handlerName = handler.FullName
		}
		details, _ := json.Marshal(map[string]any{
			"fromLevel":   current,
			"toLevel":     next,
			"rung":        rung.Name,
			"handler":     handlerName,
			"handlerId":   handlerID,
			"isAutomatic": automatic,
		})
		if err := q.InsertAuditEntry(ctx, store.AuditEntry{
			ReferenceType: string(kind),
			ReferenceID:   itemID,
			Action:        "escalated",
			PerformedBy:   actorID,
			Details:       string(details),
		}); err != nil {
			return err
		}

		result = Result{
			ReferenceType: string(kind),
			ReferenceID:   itemID,
			ItemTitle:     itemTitle,
			FromLevel:     current,
			ToLevel:       next,
			RungName:      rung.Name,
			Handler:       handler,
			IsAutomatic:   automatic,
		}
		if handler != nil {
			result.HandlerID = handler.ID
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.notifyEscalation(ctx, result, reason)
	return result, nil
}

func loadItem(ctx context.Context, q store.Queries, kind roles.ItemKind, itemID string) (level int, handlerID *string, departmentID *string, title string, err error) {
	switch kind {
	case roles.KindIncident:
		item, err := q.GetIncident(ctx, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, nil, "", ErrNotFound
		}
		if err != nil {
			return 0, nil, nil, "", err
		}
		return item.HandlerLevel, item.EscalatedTo, item.AssignedDepartmentID, item.Title, nil
	case roles.KindIdea:
		item, err := q.GetIdea(ctx, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, nil, "", ErrNotFound
		}
		if err != nil {
			return 0, nil, nil, "", err
		}
		return item.HandlerLevel, item.CurrentHandlerID, item.DepartmentID, item.Title, nil
	default:
		return 0, nil, nil, "", fmt.Errorf("unknown item kind %q", kind)
	}
}

// notifyEscalation fans out the post-commit notification on a background
// task. Delivery problems are the dispatcher's to log.
func (e *Engine) notifyEscalation(ctx context.Context, result Result, reason string) {
	if e.notifier == nil || result.Handler == nil {
		return
	}

	event := notify.Event{
		Type:          "escalation",
		Title:         fmt.Sprintf("Chuyển cấp xử lý: %s", result.RungName),
		TitleJA:       fmt.Sprintf("エスカレーション: %s", result.RungName),
		Message:       reason,
		ReferenceType: result.ReferenceType,
		ReferenceID:   result.ReferenceID,
		Metadata: map[string]string{
			"toLevel":   fmt.Sprintf("%d", result.ToLevel),
			"rung":      result.RungName,
			"itemTitle": result.ItemTitle,
		},
	}
	audience := notify.Audience{UserIDs: []string{result.Handler.ID}}

	dispatch := func(ctx context.Context) {
		if _, err := e.notifier.Dispatch(ctx, audience, event); err != nil {
			log.Printf("escalate: notify %s %s: %v", result.ReferenceType, result.ReferenceID, err)
		}
	}
	if e.runner != nil {
		e.runner.Go(context.WithoutCancel(ctx), "escalation-notify", dispatch)
		return
	}
	dispatch(ctx)
}

// AssignDepartments spreads one incident across several departments. Each
// upsert stands alone, and one audit row records the batch outcome.
func (e *Engine) AssignDepartments(ctx context.Context, incidentID, actorID string, assignments []Assignment) (BatchResult, error) {
	result := BatchResult{
		Assigned: []store.DepartmentAssignment{},
		Failed:   []AssignmentError{},
	}

	for _, assignment := range assignments {
		row, err := e.store.UpsertDepartmentAssignment(ctx, store.DepartmentAssignment{
			IncidentID:      incidentID,
			DepartmentID:    assignment.DepartmentID,
			AssignedBy:      actorID,
			AssignedTo:      assignment.AssignedTo,
			TaskDescription: assignment.TaskDescription,
			Priority:        assignment.Priority,
		})
		if err != nil {
			log.Printf("escalate: assign department %s: %v", assignment.DepartmentID, err)
			result.Failed = append(result.Failed, AssignmentError{
				DepartmentID: assignment.DepartmentID,
				Error:        err.Error(),
			})
			continue
		}
		result.Assigned = append(result.Assigned, row)
	}

	if len(result.Assigned) > 0 {
		assignedIDs := make([]string, 0, len(result.Assigned))
		for _, row := range result.Assigned {
			assignedIDs = append(assignedIDs, row.DepartmentID)
		}
		details, _ := json.Marshal(map[string]any{
			"departments": assignedIDs,
			"failed":      len(result.Failed),
		})
		if err := e.store.InsertAuditEntry(ctx, store.AuditEntry{
			ReferenceType: string(roles.KindIncident),
			ReferenceID:   incidentID,
			Action:        "departments_assigned",
			PerformedBy:   actorID,
			Details:       string(details),
		}); err != nil {
			log.Printf("escalate: audit departments_assigned for %s: %v", incidentID, err)
		}

		e.notifyAssignments(ctx, incidentID, result.Assigned)
	}

	return result, nil
}

func (e *Engine) notifyAssignments(ctx context.Context, incidentID string, assigned []store.DepartmentAssignment) {
	if e.notifier == nil {
		return
	}

	incidentTitle := ""
	if incident, err := e.store.GetIncident(ctx, incidentID); err == nil {
		incidentTitle = incident.Title
	}

	for _, row := range assigned {
		event := notify.Event{
			Type:          "incident_assigned",
			Title:         "Sự cố mới được giao cho bộ phận của bạn",
			TitleJA:       "新しいインシデントが割り当てられました",
			Message:       row.TaskDescription,
			ReferenceType: string(roles.KindIncident),
			ReferenceID:   incidentID,
			Metadata: map[string]string{
				"departmentId": row.DepartmentID,
				"itemTitle":    incidentTitle,
				"priority":     row.Priority,
			},
		}
		audience := notify.Audience{DepartmentID: row.DepartmentID}

		departmentID := row.DepartmentID
		dispatch := func(ctx context.Context) {
			if _, err := e.notifier.Dispatch(ctx, audience, event); err != nil {
				log.Printf("escalate: notify department %s: %v", departmentID, err)
			}
		}
		if e.runner != nil {
			e.runner.Go(context.WithoutCancel(ctx), "assignment-notify", dispatch)
			continue
		}
		dispatch(ctx)
	}
}
