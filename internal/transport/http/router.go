// Package httptransport assembles the public router: the ingestion API plus
// the operational endpoints every deployment carries.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calsync/pkg/platform/httputil"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a group of routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the chi router with the standard middleware chain, the
// ingestion endpoints, and the health and metrics endpoints.
func NewRouter(logger *slog.Logger, api Registrar, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	api.Register(r)

	r.Get("/healthz", handleHealth(logger, checks))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(checks)+1)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				body[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}
		if status == http.StatusOK {
			body["status"] = "ok"
		} else {
			body["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, body)
	}
}
