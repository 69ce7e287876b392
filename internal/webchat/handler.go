package webchat

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/citydoctorae/leadchat/internal/chatbot"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Handler exposes the chat widget transport: a WebSocket for live sessions,
// HTTP fallbacks for restricted networks, and the embeddable widget script.
type Handler struct {
	manager    *Manager
	transcript chatbot.TranscriptStore
	logger     *logging.Logger
	widgetJS   []byte
}

// InboundMessage is what the widget sends over the WebSocket.
type InboundMessage struct {
	Type   string `json:"type"` // "input", "open", "close", "confirm_close", "reset", "ping"
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}

// OutboundMessage is what we send to the widget: engine events plus the
// transport's own session, state, pong and error frames.
type OutboundMessage struct {
	Type      string            `json:"type"`
	Message   *chatbot.Message  `json:"message,omitempty"`
	Input     *chatbot.StepView `json:"input,omitempty"`
	Trigger   string            `json:"trigger,omitempty"`
	URL       string            `json:"url,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	VisitorID string            `json:"visitor_id,omitempty"`
	State     *chatbot.State    `json:"state,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewHandler creates a webchat handler.
func NewHandler(manager *Manager, transcript chatbot.TranscriptStore, widgetJS []byte, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		manager:    manager,
		transcript: transcript,
		logger:     logger,
		widgetJS:   widgetJS,
	}
}

// generateID creates a random identifier for sessions and visitors.
func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and drives the session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	q := r.URL.Query()
	params := StartParams{
		SessionID: q.Get("session"),
		VisitorID: q.Get("visitor"),
		PageURL:   q.Get("page"),
		GCLID:     q.Get("gclid"),
		FBCLID:    q.Get("fbclid"),
	}
	if params.SessionID == "" {
		params.SessionID = generateID()
	}
	if params.VisitorID == "" {
		params.VisitorID = generateID()
	}

	sess, created := h.manager.Ensure(r.Context(), params)
	if sess == nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Error: "service shutting down"})
		return
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sess.ID,
		VisitorID: sess.VisitorID,
	})

	// Snapshot before attaching so replay and live events don't interleave
	// out of order on a reconnect.
	state := sess.Engine().State()
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "state", State: &state})

	sess.Attach(conn, h.manager.clk.Now())
	defer sess.Detach(conn)

	h.logger.Info("webchat: connection opened",
		"session_id", sess.ID,
		"visitor_id", sess.VisitorID,
		"resumed", !created,
	)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sess.ID, "error", err)
			return
		}
		sess.touch(h.manager.clk.Now())
		h.dispatch(conn, sess, msg)
	}
}

func (h *Handler) dispatch(conn *websocket.Conn, sess *Session, msg InboundMessage) {
	switch msg.Type {
	case "ping":
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
	case "open":
		sess.Engine().Open()
	case "close":
		sess.Engine().RequestClose()
	case "confirm_close":
		sess.Engine().ConfirmClose(msg.Accept)
	case "reset":
		sess.Engine().Reset()
	case "input":
		if strings.TrimSpace(msg.Value) == "" {
			return
		}
		if err := sess.Engine().HandleInput(chatbot.Field(msg.Field), msg.Value); err != nil {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Error: errorCode(err)})
		}
	default:
		h.logger.Debug("webchat: unknown message type", "session_id", sess.ID, "type", msg.Type)
	}
}

// errorCode maps engine errors to stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chatbot.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, chatbot.ErrUnexpectedField):
		return "unexpected_field"
	case errors.Is(err, chatbot.ErrConversationComplete):
		return "conversation_complete"
	default:
		return "internal"
	}
}

// HandleMessage is the HTTP fallback for submitting an answer.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		VisitorID string `json:"visitor_id"`
		PageURL   string `json:"page_url"`
		Field     string `json:"field"`
		Value     string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Field == "" || strings.TrimSpace(req.Value) == "" {
		http.Error(w, "field and value are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateID()
	}
	if req.VisitorID == "" {
		req.VisitorID = generateID()
	}

	sess, _ := h.manager.Ensure(r.Context(), StartParams{
		SessionID: req.SessionID,
		VisitorID: req.VisitorID,
		PageURL:   req.PageURL,
	})
	if sess == nil {
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
		return
	}

	if err := sess.Engine().HandleInput(chatbot.Field(req.Field), req.Value); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": errorCode(err)})
		return
	}

	state := sess.Engine().State()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sess.ID,
		"visitor_id": sess.VisitorID,
		"state":      state,
	})
}

// HandleState returns the session snapshot, used by the HTTP fallback to
// poll for bot messages.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	sess, ok := h.manager.Session(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.touch(h.manager.clk.Now())

	state := sess.Engine().State()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

// HandleHistory returns the durable transcript for a session, surviving the
// in-memory session itself.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	var msgs []chatbot.Message
	if h.transcript != nil {
		var err error
		msgs, err = h.transcript.List(r.Context(), sessionID, 100)
		if err != nil {
			h.logger.Error("webchat: failed to load history", "error", err, "session_id", sessionID)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
	} else if sess, ok := h.manager.Session(sessionID); ok {
		msgs = sess.Engine().Transcript()
	}
	if msgs == nil {
		msgs = []chatbot.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}
