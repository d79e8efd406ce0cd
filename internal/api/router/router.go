package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/derma-voice-agent/internal/http/middleware"
	"github.com/wolfman30/derma-voice-agent/internal/session"
	"github.com/wolfman30/derma-voice-agent/internal/telephony"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Version string

	VoiceHandler        *telephony.Handler
	AppointmentsHandler *appointments.Handler
	CallsHandler        *session.CallHandler // nil without a call archive
	MetricsHandler      http.Handler

	// Webhook signature validation is skipped when WebhookSecret is empty.
	WebhookSecret string
	PublicBaseURL string

	// Admin routes are only mounted when AdminAuthSecret is set.
	AdminAuthSecret string
	RateLimiter     *httpmiddleware.RateLimiter

	// Dev endpoints
	EnableDevEndpoints bool
	Engines            *conversation.Factory
	STTProvider        string
	TTSProvider        string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RateLimiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
	}

	r.Get("/health", healthHandler(cfg.Version))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.VoiceHandler != nil {
		r.Route("/voice", func(voice chi.Router) {
			voice.Use(cfg.VoiceHandler.Recover)
			voice.Use(telephony.RequireSignature(cfg.WebhookSecret, cfg.PublicBaseURL, cfg.Logger))
			voice.Post("/call-handler", cfg.VoiceHandler.CallHandler)
			voice.Post("/process-input", cfg.VoiceHandler.ProcessInput)
			voice.Post("/call-status", cfg.VoiceHandler.CallStatus)
		})
	}

	if cfg.EnableDevEndpoints && cfg.Engines != nil {
		dev := newDevHandler(cfg)
		r.Get("/test", dev.Info)
		r.Post("/test/agent", dev.Agent)
	}

	if cfg.AdminAuthSecret != "" && cfg.AppointmentsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/appointments", cfg.AppointmentsHandler.List)
			if cfg.CallsHandler != nil {
				admin.Get("/calls/{callSid}", cfg.CallsHandler.Get)
			}
		})
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "Not found",
			"path":  req.URL.Path,
		})
	})

	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
