package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/fraud"
	"github.com/brainsait/reconciler/internal/ingestion"
	"github.com/brainsait/reconciler/internal/reconciliation"
	"github.com/brainsait/reconciler/internal/repository"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Reconciler *reconciliation.Service
	Fraud      *fraud.Service
	Ingestion  *ingestion.Service
	Ledger     *repository.TransactionRepo
	Reports    *repository.ReportRepo
	Checks     map[string]HealthCheck
	Gatherer   prometheus.Gatherer
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(deps Deps, log zerolog.Logger) http.Handler {
	h := &Handlers{
		reconciler: deps.Reconciler,
		fraud:      deps.Fraud,
		ingestion:  deps.Ingestion,
		ledger:     deps.Ledger,
		reports:    deps.Reports,
		checks:     deps.Checks,
		now:        time.Now,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/healthz", h.Health)

		r.Route("/api/v1", func(r chi.Router) {
			// Reconciliation.
			r.Post("/reconciliations", h.Reconcile)
			r.Get("/reconciliations", h.ListReconciliations)
			r.Get("/reconciliations/summary", h.GetSummary)
			r.Get("/reconciliations/{id}", h.GetReconciliation)

			// Fraud.
			r.Post("/fraud/analyze", h.AnalyzeFraud)

			// Internal ledger.
			r.Post("/transactions", h.CreateTransaction)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/transactions/{id}", h.GetTransaction)

			// Provider reports.
			r.Post("/providers/{provider}/reports", h.IngestReport)
			r.Get("/providers/{provider}/reports", h.ListReports)
		})
	})

	return r
}

// requestLogger attaches a request-scoped logger to the context and logs one
// line per request once it completes.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Str("ip", r.RemoteAddr).
					Int64("duration_ms", time.Since(start).Milliseconds()).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		})
	}
}
