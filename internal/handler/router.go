package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the router serves. Nil services leave their routes
// answering 503.
type Services struct {
	Analytics   *service.AnalyticsService
	Ledger      *service.LedgerService
	Dashboard   *service.DashboardService
	Auth        *service.AuthService
	Assistant   *service.AssistantService
	Simulations *service.SimulationService

	// Backend names the ledger backend in /healthz; Store is pinged there.
	Backend string
	Store   Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Backend, svcs.Store))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics/analytics", analyticsMetricsHandler(metrics))

		if svcs.Auth == nil {
			r.Handle("/*", unavailable("ledger backend not configured"))
			return
		}

		// Public routes
		r.Post("/auth/login", authLoginHandler(svcs.Auth, logger))
		r.Get("/subjects/{scope}", listSubjectsHandler(svcs.Auth, logger))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			r.Get("/auth/session", sessionHandler())
			r.Post("/analytics/overview", overviewHandler(svcs.Analytics, logger))
			r.Get("/analytics/categories", categoriesHandler(svcs.Ledger, logger))
			r.Get("/analytics/month-summary", monthSummaryHandler(svcs.Ledger, logger))
			r.Get("/dashboard", dashboardHandler(svcs.Dashboard, logger))

			if svcs.Assistant != nil {
				r.Post("/assistant", assistantHandler(svcs.Assistant, logger))
			} else {
				r.Post("/assistant", unavailable("assistant not configured"))
			}
			if svcs.Simulations != nil {
				r.Post("/simulations", runSimulationHandler(svcs.Simulations, logger))
				r.Get("/simulations", listSimulationsHandler(svcs.Simulations, logger))
			} else {
				r.Handle("/simulations", unavailable("simulations not configured"))
			}
		})
	})

	return r
}

func unavailable(reason string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "service unavailable: "+reason)
	}
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(backend string, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.HealthStatus{Status: "healthy", Backend: backend, Checks: map[string]string{}}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			if err := store.Ping(ctx); err != nil {
				status.Status = "degraded"
				status.Checks["ledger"] = err.Error()
			} else {
				status.Checks["ledger"] = "ok (" + time.Since(start).Round(time.Millisecond).String() + ")"
			}
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func analyticsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
