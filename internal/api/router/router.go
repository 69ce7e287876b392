package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/citydoctorae/leadchat/internal/handoff"
	httpmiddleware "github.com/citydoctorae/leadchat/internal/http/middleware"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/internal/webchat"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webchat            *webchat.Handler
	LeadsHandler       *leads.Handler
	HandoffHandler     *handoff.Handler
	MetricsHandler     http.Handler
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Per-IP rate limit for the HTTP chat fallback. Zero disables it.
	ChatRateLimit float64
	ChatRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Widget transport
	if cfg.Webchat != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.Get("/ws", cfg.Webchat.HandleWebSocket)
			chat.Get("/widget.js", cfg.Webchat.HandleWidgetJS)
			chat.Get("/state", cfg.Webchat.HandleState)
			chat.Get("/history", cfg.Webchat.HandleHistory)
			if cfg.ChatRateLimit > 0 {
				chat.With(httpmiddleware.RateLimit(cfg.ChatRateLimit, cfg.ChatRateBurst)).Post("/message", cfg.Webchat.HandleMessage)
			} else {
				chat.Post("/message", cfg.Webchat.HandleMessage)
			}
		})
	}

	// Confirmation page handoff
	if cfg.HandoffHandler != nil {
		r.Get("/thank-you/handoff", cfg.HandoffHandler.Resolve)
	}

	// Admin routes (protected by JWT)
	if cfg.AdminJWTSecret != "" && cfg.LeadsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/leads", cfg.LeadsHandler.ListLeads)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
