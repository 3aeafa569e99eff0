package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apimw "github.com/phrazzld/filepipe/internal/api/middleware"
	"github.com/phrazzld/filepipe/internal/api/shared"
)

// healthTimeout bounds a readiness check.
const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Files *FileHandler
	// Auth protects the /api routes when set.
	Auth *apimw.AuthMiddleware
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Health checks run on every /health request.
	Health map[string]HealthCheck
	Logger *slog.Logger
}

// NewRouter creates the application router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apimw.NewTraceMiddleware(cfg.Logger))

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Authenticate)
		}

		r.Route("/files/{provider}", func(r chi.Router) {
			for _, route := range uploadRoutes {
				r.Post(route.path, cfg.Files.Upload(route))
			}
			r.Delete("/", cfg.Files.Delete)
		})
		r.Get("/jobs/{id}", cfg.Files.GetJob)
	})

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				continue
			}
			results[name] = "ok"
		}

		body := map[string]interface{}{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		shared.RespondWithJSON(w, r, status, body)
	}
}
