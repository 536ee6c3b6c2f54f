package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/handlers"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/jobs"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics (when metrics are enabled)
//   - GET /api/v1/directoryservices/status - Lifecycle state
//   - GET /api/v1/activedirectory - Membership configuration
//   - PUT /api/v1/activedirectory - Update configuration (job)
//   - POST /api/v1/activedirectory/leave - Leave the domain (job)
//   - GET /api/v1/activedirectory/domain_info - Domain controller details
//   - GET /api/v1/activedirectory/nss_info_choices - NSS info sources
//   - GET /api/v1/jobs - Job list
//   - GET /api/v1/jobs/{id} - Job status
func NewRouter(svc handlers.DirectoryService, jm *jobs.Manager) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(svc)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if reg := metrics.GetRegistry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	dsHandler := handlers.NewDirectoryServiceHandler(svc, jm)
	jobHandler := handlers.NewJobHandler(jm)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/directoryservices/status", dsHandler.GetState)

		r.Route("/activedirectory", func(r chi.Router) {
			r.Get("/", dsHandler.GetConfig)
			r.Put("/", dsHandler.UpdateConfig)
			r.Post("/leave", dsHandler.Leave)
			r.Get("/domain_info", dsHandler.GetDomainInfo)
			r.Get("/nss_info_choices", dsHandler.NSSInfoChoices)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.List)
			r.Get("/{id}", jobHandler.Get)
		})
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// Healthcheck requests are logged at DEBUG level to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
