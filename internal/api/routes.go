package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/config"
	"github.com/yegors/vocode-client/internal/session"
	"github.com/yegors/vocode-client/pkg/logger"
)

// Controller is the session surface the API drives
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	SetActive(active bool)
	ToggleActive()
	Snapshot() session.State
	Blobs() *audio.BlobStore
}

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     config.ServerConfig
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(ctrl Controller, cfg config.ServerConfig, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(ctrl, logger),
		middleware: NewMiddleware(logger),
		config:     cfg,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.CORSOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		// Session lifecycle
		router.Get("/session", r.handler.GetSession)
		router.Post("/session/start", r.handler.StartSession)
		router.Post("/session/stop", r.handler.StopSession)
		router.Post("/session/active", r.handler.SetActive)
		router.Post("/session/active/toggle", r.handler.ToggleActive)
		router.Get("/session/transcripts", r.handler.GetTranscripts)

		// Finalized combined recordings
		router.Get("/recordings/{id}", r.handler.GetRecording)
		router.Head("/recordings/{id}", r.handler.GetRecording)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
