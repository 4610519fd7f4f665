package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/fraud"
	"github.com/brainsait/reconciler/internal/ingestion"
	"github.com/brainsait/reconciler/internal/reconciliation"
	"github.com/brainsait/reconciler/internal/repository"
)

const (
	maxJSONBody   = 1 << 20
	maxReportBody = 32 << 20
	healthTimeout = 2 * time.Second
)

var validate = validator.New()

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	reconciler *reconciliation.Service
	fraud      *fraud.Service
	ingestion  *ingestion.Service
	ledger     *repository.TransactionRepo
	reports    *repository.ReportRepo
	checks     map[string]HealthCheck
	now        func() time.Time
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		derr *domain.DataSourceError
		perr *domain.PersistenceError
	)
	logger := zerolog.Ctx(r.Context())

	switch {
	case errors.As(err, &verr):
		body := map[string]string{"error": verr.Error()}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &derr):
		logger.Warn().Err(err).Str("source", derr.Source).Msg("upstream fetch failed")
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.As(err, &perr):
		logger.Error().Err(err).Msg("persistence failed")
		writeError(w, http.StatusInternalServerError, "failed to persist "+perr.Op)
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func validateRequest(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ValidationError{
				Field:  strings.ToLower(fe.Field()),
				Reason: fmt.Sprintf("failed %q check", fe.Tag()),
			}
		}
		return &domain.ValidationError{Reason: err.Error()}
	}
	return nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

// parseBound parses a required window bound. A bare date used as an upper
// bound covers the whole day.
func parseBound(field, s string, upper bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "is required"}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "must be RFC3339 or YYYY-MM-DD"}
	}
	if upper {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func optionalProvider(s string) (domain.Provider, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParseProvider(s)
}

// --- Reconcile ---

type reconcileRequest struct {
	Provider string `json:"provider" validate:"required"`
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
}

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	start, err := parseBound("start", req.Start, false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	end, err := parseBound("end", req.End, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	records, err := h.reconciler.Reconcile(r.Context(), provider, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"start":    start,
		"end":      end,
		"records":  records,
		"count":    len(records),
	})
}

// --- ListReconciliations ---

func (h *Handlers) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RecordFilter{
		Provider: strings.ToLower(q.Get("provider")),
		Status:   q.Get("status"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	records, total, err := h.reconciler.ListRecords(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

// --- GetReconciliation ---

func (h *Handlers) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reconciler.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// --- GetSummary ---

func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseBound("start", q.Get("start"), false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	end, err := parseBound("end", q.Get("end"), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	provider, err := optionalProvider(q.Get("provider"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	summary, err := h.reconciler.GenerateSummary(r.Context(), start, end, provider)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// --- AnalyzeFraud ---

func (h *Handlers) AnalyzeFraud(w http.ResponseWriter, r *http.Request) {
	var attempt domain.PaymentAttempt
	if err := decodeJSON(w, r, &attempt); err != nil {
		writeServiceError(w, r, err)
		return
	}

	tx := &attempt.Transaction
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = h.now().UTC()
	}

	analysis, err := h.fraud.Check(r.Context(), attempt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// --- CreateTransaction ---

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.TransactionRecord
	if err := decodeJSON(w, r, &tx); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = h.now().UTC()
	}
	if err := domain.ValidateTransaction(&tx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := h.ledger.GetByID(ctx, tx.ID); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("transaction %s already exists", tx.ID))
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		writeServiceError(w, r, err)
		return
	}

	if err := h.ledger.Insert(ctx, &tx); err != nil {
		writeServiceError(w, r, &domain.PersistenceError{Op: "transaction", Err: err})
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// --- ListTransactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider, err := optionalProvider(q.Get("provider"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filter := repository.TransactionFilter{
		Provider:   string(provider),
		Status:     q.Get("status"),
		CustomerID: q.Get("customer_id"),
		From:       parseTime(q.Get("from")),
		To:         parseTime(q.Get("to")),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	txns, total, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

// --- GetTransaction ---

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	tx, err := h.ledger.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// --- IngestReport ---

func (h *Handlers) IngestReport(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReportBody)
	if err := r.ParseMultipartForm(maxReportBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingestion.IngestReport(r.Context(), data, provider, r.FormValue("format"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyIngested {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// --- ListReports ---

func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	reports, err := h.reports.ListReports(r.Context(), provider)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"total":   len(reports),
	})
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("health check failed")
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": results,
	})
}
