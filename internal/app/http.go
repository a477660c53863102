package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartfactory/api/internal/roles"
	"smartfactory/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Every route below acts on behalf of a user.
	actor, err := s.identify(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "incidents":
		s.handleIncidents(w, r, actor, parts[2:])
	case "ideas":
		s.handleIdeas(w, r, actor, parts[2:])
	case "notifications":
		s.handleNotifications(w, r, actor, parts[2:])
	case "device-tokens":
		s.handleDeviceTokens(w, r, actor, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// identify resolves the caller from the X-User-ID header. Authentication
// itself lives at the gateway, this service trusts the forwarded identity.
func (s *HTTPServer) identify(r *http.Request) (store.User, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Missing X-User-ID header", nil)
	}
	return s.service.ResolveUser(r.Context(), userID)
}

func (s *HTTPServer) handleIncidents(w http.ResponseWriter, r *http.Request, actor store.User, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var input CreateIncidentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		incident, err := s.service.CreateIncident(r.Context(), actor.ID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, incidentPayload(incident))
		// Enrichment must wait for the reporter's response to go out, the
		// middleware runs this hook after the flush.
		afterResponse(r.Context(), func() {
			s.service.EnqueueEnrichment(context.WithoutCancel(r.Context()), incident)
		})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "similar":
		query := r.URL.Query().Get("q")
		limit := queryInt(r, "limit", 5)
		response, err := s.service.SimilarIncidents(r.Context(), query, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case r.Method == http.MethodGet && len(rest) == 1:
		incident, err := s.service.GetIncident(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, incidentPayload(incident))

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "escalate":
		var input EscalateInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Escalate(r.Context(), roles.KindIncident, rest[0], actor.ID, input.Reason)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "assignments":
		var body struct {
			Assignments []DepartmentAssignmentInput `json:"assignments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.AssignDepartments(r.Context(), rest[0], actor.ID, body.Assignments)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batchResultPayload(result))

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "history":
		history, err := s.service.ItemHistory(r.Context(), roles.KindIncident, rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyPayload(history))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleIdeas(w http.ResponseWriter, r *http.Request, actor store.User, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var input CreateIdeaInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		idea, err := s.service.CreateIdea(r.Context(), actor.ID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ideaPayload(idea))

	case r.Method == http.MethodGet && len(rest) == 1:
		idea, err := s.service.GetIdea(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ideaPayload(idea))

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "escalate":
		var input EscalateInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Escalate(r.Context(), roles.KindIdea, rest[0], actor.ID, input.Reason)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "history":
		history, err := s.service.ItemHistory(r.Context(), roles.KindIdea, rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyPayload(history))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, actor store.User, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		unreadOnly := r.URL.Query().Get("unread") == "true"
		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)
		list, err := s.service.Notifications(r.Context(), actor.ID, unreadOnly, limit, offset)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, notificationListPayload(list, actor.Language))

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "read-all":
		count, err := s.service.MarkAllNotificationsRead(r.Context(), actor.ID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"markedRead": count})

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "read":
		if err := s.service.MarkNotificationRead(r.Context(), rest[0], actor.ID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDeviceTokens(w http.ResponseWriter, r *http.Request, actor store.User, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var input RegisterTokenInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		record, err := s.service.RegisterDeviceToken(r.Context(), actor.ID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, deviceTokenPayload(record))

	case r.Method == http.MethodDelete && len(rest) == 1:
		if err := s.service.RemoveDeviceToken(r.Context(), rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		hooks := &afterResponseHooks{}
		ctx = context.WithValue(ctx, afterResponseKey{}, hooks)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)

		// Deferred work runs only after the response bytes have left the
		// handler, so background tasks cannot race the caller's reply.
		writer.flush()
		hooks.run()
	})
}

type requestIDKey struct{}

type afterResponseKey struct{}

// afterResponseHooks collects work a handler wants started once its response
// has been written and flushed.
type afterResponseHooks struct {
	fns []func()
}

func (h *afterResponseHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// afterResponse defers fn until the middleware has flushed the response. A
// handler served without the middleware falls back to running fn inline.
func afterResponse(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(afterResponseKey{}).(*afterResponseHooks); ok {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
