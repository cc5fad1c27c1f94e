package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tutoring-platform/backend/app"
	"github.com/upb/tutoring-platform/backend/handlers"
	"github.com/upb/tutoring-platform/backend/middleware"
	"github.com/upb/tutoring-platform/backend/utils"
	"go.uber.org/zap"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Forwarding headers are only honoured from these peers
	trustedProxies, err := deps.Config.Server.TrustedProxyNets()
	if err != nil {
		deps.Logger.Warn("ignoring trusted proxies, client IP taken from the socket peer", zap.Error(err))
		trustedProxies = nil
	}

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext(trustedProxies))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", deps.Config.SecurityLog.Header},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	securityLogs := handlers.NewSecurityLogHandler(
		deps.SecurityLogService,
		deps.Config.SecurityLog.Header,
		deps.Config.SecurityLog.MaxBodyBytes,
		deps.Logger,
	)
	if deps.Recorder != nil {
		securityLogs.WithRecorder(deps.Recorder)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/security-logs", func(r chi.Router) {
			r.Get("/events", securityLogs.HandleEvents)

			r.Group(func(r chi.Router) {
				if deps.RateLimitStore != nil {
					r.Use(middleware.RateLimit(deps.RateLimitStore, deps.Logger))
				}
				r.Post("/", securityLogs.HandleSubmit)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
