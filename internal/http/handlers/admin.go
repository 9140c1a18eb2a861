package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alejandria/sales-ai-platform/internal/audit"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// HistoryReader loads a session's stored turns.
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

// AuditQuerier reads CRM audit events.
type AuditQuerier interface {
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// AdminHandler exposes read-only operator views.
type AdminHandler struct {
	history HistoryReader
	audit   AuditQuerier
	logger  *logging.Logger
}

// NewAdminHandler creates the admin handler. auditLog may be nil when no database is configured.
func NewAdminHandler(history HistoryReader, auditLog AuditQuerier, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{history: history, audit: auditLog, logger: logger}
}

// SessionTurns handles GET /admin/sessions/{sessionID}/turns.
func (h *AdminHandler) SessionTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	turns, err := h.history.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("admin: failed to load turns", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load turns", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
		"count":      len(turns),
	})
}

// AuditEvents handles GET /admin/audit?lead_id=&event_type=&since=&until=&limit=&offset=.
func (h *AdminHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Limit: 50, EventType: audit.EventType(q.Get("event_type"))}
	if raw := q.Get("lead_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid lead_id", http.StatusBadRequest)
			return
		}
		filter.LeadID = id
	}
	for key, dst := range map[string]*time.Time{"since": &filter.StartTime, "until": &filter.EndTime} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid "+key+": expected RFC3339", http.StatusBadRequest)
			return
		}
		*dst = ts
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 500 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	logger := h.logger
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
		logger = logger.With("admin_subject", claims.Subject)
	}
	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		logger.Error("admin: failed to query audit events", "error", err)
		http.Error(w, "failed to query audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
	logger.Debug("admin: audit events served", "count", len(events))
}
