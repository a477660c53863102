package notify

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"smartfactory/api/internal/email"
	"smartfactory/api/internal/push"
	"smartfactory/api/internal/realtime"
	"smartfactory/api/internal/store"
)

// Channel outcome values.
const (
	StatusOK            = "ok"
	StatusFailed        = "failed"
	StatusNotConfigured = "not_configured"
)

// ChannelStatus reports how one delivery channel fared for a dispatch.
type ChannelStatus struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// Result summarizes a dispatch across all channels.
type Result struct {
	RecipientCount int             `json:"recipientCount"`
	Channels       []ChannelStatus `json:"channels"`
}

type notifyStore interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
	ActiveUserIDsByDepartment(ctx context.Context, departmentID string) ([]string, error)
	ActiveUserIDsByMaxLevel(ctx context.Context, level int) ([]string, error)
	ActiveContacts(ctx context.Context, userIDs []string) ([]store.Contact, error)
	InsertNotification(ctx context.Context, n store.Notification) error
}

type tokenDirectory interface {
	TokensForMany(ctx context.Context, userIDs []string) ([]string, error)
	Invalidate(ctx context.Context, tokens []string)
}

type pushSender interface {
	Configured() bool
	Send(ctx context.Context, tokens []string, msg push.Message) (push.Result, error)
}

type realtimePublisher interface {
	PublishToUser(ctx context.Context, userID string, event realtime.Event) error
}

type emailSender interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
	SendEscalationEmail(to []string, language string, data email.EscalationData) error
	SendAssignmentEmail(to []string, language string, data email.AssignmentData) error
}

// Dispatcher fans one event out to every delivery channel. Channels run
// concurrently and independently, a dead push gateway must not stop the
// in-app rows from being written.
type Dispatcher struct {
	store    notifyStore
	tokens   tokenDirectory
	push     pushSender
	realtime realtimePublisher
	email    emailSender
}

// NewDispatcher wires the channels. push, realtime, and email may be nil
// when the deployment does not configure them.
func NewDispatcher(s notifyStore, tokens tokenDirectory, p pushSender, rt realtimePublisher, e emailSender) *Dispatcher {
	return &Dispatcher{store: s, tokens: tokens, push: p, realtime: rt, email: e}
}

// Dispatch expands the audience and delivers the event on every channel.
// An empty audience is a success with zero recipients, no channel runs.
// The returned error covers audience expansion only, channel failures are
// reported per channel in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, audience Audience, event Event) (Result, error) {
	recipients, err := d.expand(ctx, audience)
	if err != nil {
		return Result{}, err
	}
	if len(recipients) == 0 {
		return Result{RecipientCount: 0, Channels: []ChannelStatus{}}, nil
	}

	statuses := make([]ChannelStatus, 4)
	var wg sync.WaitGroup
	run := func(idx int, name string, fn func(ctx context.Context) ChannelStatus) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("notify: %s channel panicked: %v", name, rec)
					statuses[idx] = ChannelStatus{Channel: name, Status: StatusFailed, Detail: "panic"}
				}
			}()
			statuses[idx] = fn(ctx)
		}()
	}

	run(0, "in_app", func(ctx context.Context) ChannelStatus { return d.deliverInApp(ctx, recipients, event) })
	run(1, "push", func(ctx context.Context) ChannelStatus { return d.deliverPush(ctx, recipients, event) })
	run(2, "realtime", func(ctx context.Context) ChannelStatus { return d.deliverRealtime(ctx, recipients, event) })
	run(3, "email", func(ctx context.Context) ChannelStatus { return d.deliverEmail(ctx, recipients, event) })
	wg.Wait()

	return Result{RecipientCount: len(recipients), Channels: statuses}, nil
}

// expand resolves the audience selectors into a deduplicated user id set.
func (d *Dispatcher) expand(ctx context.Context, audience Audience) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}

	add(audience.UserIDs)

	if audience.DepartmentID != "" {
		ids, err := d.store.ActiveUserIDsByDepartment(ctx, audience.DepartmentID)
		if err != nil {
			return nil, err
		}
		add(ids)
	}
	if audience.MinLevel > 0 {
		ids, err := d.store.ActiveUserIDsByMaxLevel(ctx, audience.MinLevel)
		if err != nil {
			return nil, err
		}
		add(ids)
	}
	if audience.Everyone {
		ids, err := d.store.ActiveUserIDs(ctx)
		if err != nil {
			return nil, err
		}
		add(ids)
	}

	sort.Strings(out)
	return out, nil
}

func (d *Dispatcher) deliverInApp(ctx context.Context, recipients []string, event Event) ChannelStatus {
	metadata := "{}"
	if len(event.Metadata) > 0 {
		if raw, err := json.Marshal(event.Metadata); err == nil {
			metadata = string(raw)
		}
	}

	failed := 0
	for _, userID := range recipients {
		n := store.Notification{
			UserID:        userID,
			Type:          event.Type,
			Title:         event.Title,
			TitleJA:       event.TitleJA,
			Message:       event.Message,
			MessageJA:     event.MessageJA,
			ReferenceType: event.ReferenceType,
			ReferenceID:   event.ReferenceID,
			ActionURL:     event.ActionURL,
			Metadata:      metadata,
		}
		if err := d.store.InsertNotification(ctx, n); err != nil {
			log.Printf("notify: insert notification for %s: %v", userID, err)
			failed++
		}
	}

	if failed == len(recipients) {
		return ChannelStatus{Channel: "in_app", Status: StatusFailed, Detail: "all inserts failed"}
	}
	if failed > 0 {
		return ChannelStatus{Channel: "in_app", Status: StatusOK, Detail: "partial"}
	}
	return ChannelStatus{Channel: "in_app", Status: StatusOK}
}

func (d *Dispatcher) deliverPush(ctx context.Context, recipients []string, event Event) ChannelStatus {
	if d.push == nil || !d.push.Configured() {
		return ChannelStatus{Channel: "push", Status: StatusNotConfigured}
	}

	tokens, err := d.tokens.TokensForMany(ctx, recipients)
	if err != nil {
		log.Printf("notify: load push tokens: %v", err)
		return ChannelStatus{Channel: "push", Status: StatusFailed, Detail: "token lookup"}
	}
	if len(tokens) == 0 {
		return ChannelStatus{Channel: "push", Status: StatusOK, Detail: "no devices"}
	}

	msg := push.Message{
		Title: event.Title,
		Body:  event.Message,
		Data: map[string]string{
			"type":          event.Type,
			"referenceType": event.ReferenceType,
			"referenceId":   event.ReferenceID,
		},
	}
	result, err := d.push.Send(ctx, tokens, msg)
	if err != nil {
		log.Printf("notify: push send: %v", err)
		return ChannelStatus{Channel: "push", Status: StatusFailed, Detail: err.Error()}
	}
	if len(result.InvalidTokens) > 0 {
		d.tokens.Invalidate(ctx, result.InvalidTokens)
	}
	return ChannelStatus{Channel: "push", Status: StatusOK}
}

func (d *Dispatcher) deliverRealtime(ctx context.Context, recipients []string, event Event) ChannelStatus {
	if d.realtime == nil {
		return ChannelStatus{Channel: "realtime", Status: StatusNotConfigured}
	}

	data := make(map[string]any, len(event.Metadata))
	for k, v := range event.Metadata {
		data[k] = v
	}

	failed := 0
	for _, userID := range recipients {
		rte := realtime.Event{
			Type:          event.Type,
			Title:         event.Title,
			Message:       event.Message,
			ReferenceType: event.ReferenceType,
			ReferenceID:   event.ReferenceID,
			Data:          data,
		}
		if err := d.realtime.PublishToUser(ctx, userID, rte); err != nil {
			log.Printf("notify: realtime publish to %s: %v", userID, err)
			failed++
		}
	}

	if failed == len(recipients) {
		return ChannelStatus{Channel: "realtime", Status: StatusFailed, Detail: "all publishes failed"}
	}
	return ChannelStatus{Channel: "realtime", Status: StatusOK}
}

// deliverEmail batches recipients by language so each group gets subjects
// and bodies in its own locale.
func (d *Dispatcher) deliverEmail(ctx context.Context, recipients []string, event Event) ChannelStatus {
	if d.email == nil || !d.email.IsConfigured() {
		return ChannelStatus{Channel: "email", Status: StatusNotConfigured}
	}

	contacts, err := d.store.ActiveContacts(ctx, recipients)
	if err != nil {
		log.Printf("notify: load contacts: %v", err)
		return ChannelStatus{Channel: "email", Status: StatusFailed, Detail: "contact lookup"}
	}

	byLanguage := map[string][]string{}
	for _, contact := range contacts {
		if contact.Email == "" {
			continue
		}
		language := contact.Language
		if language != "ja" {
			language = "vi"
		}
		byLanguage[language] = append(byLanguage[language], contact.Email)
	}
	if len(byLanguage) == 0 {
		return ChannelStatus{Channel: "email", Status: StatusOK, Detail: "no addresses"}
	}

	failed := 0
	for language, addresses := range byLanguage {
		if err := d.sendEmailBatch(addresses, language, event); err != nil {
			log.Printf("notify: email %s batch: %v", language, err)
			failed++
		}
	}

	if failed == len(byLanguage) {
		return ChannelStatus{Channel: "email", Status: StatusFailed, Detail: "all batches failed"}
	}
	return ChannelStatus{Channel: "email", Status: StatusOK}
}

// sendEmailBatch picks the richest template the event supports. Escalations
// and assignments get the HTML notices, everything else a plain message.
func (d *Dispatcher) sendEmailBatch(addresses []string, language string, event Event) error {
	switch event.Type {
	case "escalation":
		return d.email.SendEscalationEmail(addresses, language, email.EscalationData{
			ItemTitle: event.Metadata["itemTitle"],
			ItemKind:  event.ReferenceType,
			RungName:  event.Metadata["rung"],
			Reason:    event.Message,
			ActionURL: event.ActionURL,
		})
	case "incident_assigned":
		return d.email.SendAssignmentEmail(addresses, language, email.AssignmentData{
			IncidentTitle:  event.Metadata["itemTitle"],
			DepartmentName: event.Metadata["departmentName"],
			Priority:       event.Metadata["priority"],
			ActionURL:      event.ActionURL,
		})
	}

	body := event.messageFor(language)
	if event.ActionURL != "" {
		body += "\r\n\r\n" + event.ActionURL
	}
	return d.email.SendEmail(addresses, event.titleFor(language), body)
}
