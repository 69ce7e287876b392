package handoff

import (
	"encoding/json"
	"net/http"

	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Handler resolves handoff tickets for the confirmation page.
type Handler struct {
	tickets     *TicketStore
	whatsappURL string
	logger      *logging.Logger
}

// NewHandler creates a handoff handler. whatsappURL is the wa.me base URL.
func NewHandler(tickets *TicketStore, whatsappURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		tickets:     tickets,
		whatsappURL: whatsappURL,
		logger:      logger,
	}
}

// HandoffResponse is returned to the confirmation page.
type HandoffResponse struct {
	FromChatbot bool   `json:"from_chatbot"`
	WhatsAppURL string `json:"whatsapp_url"`
}

// Resolve handles GET /thank-you/handoff?session=... requests. The ticket is
// consumed on first read; later reads get the generic link only.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	resp := HandoffResponse{
		WhatsAppURL: BuildWhatsAppLink(h.whatsappURL, nil),
	}

	ticket, ok, err := h.tickets.Consume(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("handoff: failed to resolve ticket", "error", err, "session_id", sessionID)
	} else if ok {
		resp.FromChatbot = true
		resp.WhatsAppURL = BuildWhatsAppLink(h.whatsappURL, ticket.Summary)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
