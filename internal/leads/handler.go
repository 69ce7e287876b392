package leads

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Handler serves the lead archive over HTTP.
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

// ListLeadsResponse is the response for listing archived leads
type ListLeadsResponse struct {
	Leads []*LeadRecord `json:"leads"`
	Count int           `json:"count"`
}

// ListLeads handles GET /admin/leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	records, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListLeadsResponse{Leads: records, Count: len(records)})
}
