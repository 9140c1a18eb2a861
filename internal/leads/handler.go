package leads

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Handler handles HTTP requests for lead records
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ListRecordsResponse is the response for listing lead records
type ListRecordsResponse struct {
	LeadID  int64     `json:"lead_id"`
	Records []*Record `json:"records"`
	Count   int       `json:"count"`
	Offset  int       `json:"offset"`
	Limit   int       `json:"limit"`
}

// ListRecords handles GET /admin/leads/{leadID}/records requests
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	leadID, err := strconv.ParseInt(chi.URLParam(r, "leadID"), 10, 64)
	if err != nil || leadID <= 0 {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}

	filter := ListRecordsFilter{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	records, err := h.repo.ListByLead(r.Context(), leadID, filter)
	if err != nil {
		h.logger.Error("failed to list lead records", "error", err, "lead_id", leadID)
		http.Error(w, "failed to list lead records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListRecordsResponse{
		LeadID:  leadID,
		Records: records,
		Count:   len(records),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
	})
}
