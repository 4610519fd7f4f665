package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/fraud"
	"github.com/brainsait/reconciler/internal/ingestion"
	"github.com/brainsait/reconciler/internal/metrics"
	"github.com/brainsait/reconciler/internal/reconciliation"
	"github.com/brainsait/reconciler/internal/repository"
)

var fixedNow = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

const madaReport = `terminal_id,merchant_id,rrn,auth_code,transaction_id,order_id,transaction_date,amount,fee,currency,status,batch_number
T001,M9,412345678901,A1B2C3,MADA-1,O1,2026-03-02 13:00:00,150.00,1.50,SAR,APPROVED,B-77
T001,M9,412345678902,A1B2C4,MADA-2,O2,2026-03-02 14:00:00,75.00,0.75,SAR,APPROVED,B-77
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ledger := repository.NewLedgerRepo(db)
	feed := repository.NewProviderFeedRepo(db)
	reports := repository.NewReportRepo(db)

	reconciler := reconciliation.NewService(ledger, feed, repository.NewReconciliationRepo(db), log,
		reconciliation.WithClock(func() time.Time { return fixedNow }),
		reconciliation.WithMetrics(m),
	)
	engine := fraud.NewEngine(fraud.DefaultConfig(), fraud.WithEngineMetrics(m))

	srv := httptest.NewServer(NewRouter(Deps{
		Reconciler: reconciler,
		Fraud:      fraud.NewService(engine, ledger, log),
		Ingestion:  ingestion.NewService(reports, m, log),
		Ledger:     ledger,
		Reports:    reports,
		Checks:     map[string]HealthCheck{"database": db.PingContext},
		Gatherer:   reg,
	}, log))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func postReport(t *testing.T, url, content, format string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestReconciliationFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/transactions", map[string]any{
		"id":             "int-1",
		"provider":       "mada",
		"transaction_id": "MADA-1",
		"order_id":       "O1",
		"amount":         "150.00",
		"currency":       "SAR",
		"status":         "captured",
		"created_at":     "2026-03-02T10:00:00Z",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postReport(t, srv.URL+"/api/v1/providers/mada/reports", madaReport, "")
	var ingest ingestion.IngestResult
	decodeBody(t, resp, &ingest)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, ingest.RecordsIngested)
	assert.Equal(t, ingestion.FormatMadaCSV, ingest.Format)

	resp = postReport(t, srv.URL+"/api/v1/providers/mada/reports", madaReport, "")
	decodeBody(t, resp, &ingest)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ingest.AlreadyIngested)

	resp = postJSON(t, srv.URL+"/api/v1/reconciliations", map[string]string{
		"provider": "mada",
		"start":    "2026-03-02",
		"end":      "2026-03-02",
	})
	var run struct {
		Records []domain.ReconciliationRecord `json:"records"`
		Count   int                           `json:"count"`
	}
	decodeBody(t, resp, &run)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, run.Count)

	byStatus := map[domain.ReconciliationStatus]int{}
	for _, rec := range run.Records {
		byStatus[rec.Status]++
	}
	assert.Equal(t, 1, byStatus[domain.ReconciliationMatched])
	assert.Equal(t, 1, byStatus[domain.ReconciliationUnmatched])

	resp, err := http.Get(srv.URL + "/api/v1/reconciliations/summary?start=2026-03-03&end=2026-03-03&provider=mada")
	require.NoError(t, err)
	var summary domain.ReconciliationSummary
	decodeBody(t, resp, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, summary.TotalTransactions)
	assert.Equal(t, 1, summary.MatchedTransactions)
	assert.Equal(t, 50.0, summary.MatchRate)

	resp, err = http.Get(srv.URL + "/api/v1/reconciliations?status=matched")
	require.NoError(t, err)
	var list struct {
		Records []domain.ReconciliationRecord `json:"records"`
		Total   int                           `json:"total"`
		Limit   int                           `json:"limit"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 50, list.Limit)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "MADA-1", list.Records[0].TransactionID)

	resp, err = http.Get(srv.URL + "/api/v1/reconciliations/" + list.Records[0].ID)
	require.NoError(t, err)
	var one domain.ReconciliationRecord
	decodeBody(t, resp, &one)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, list.Records[0].ID, one.ID)
	assert.Equal(t, domain.ReconciliationMatched, one.Status)

	resp, err = http.Get(srv.URL + "/api/v1/reconciliations/no-such-record")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/providers/mada/reports")
	require.NoError(t, err)
	var reports struct {
		Total int `json:"total"`
	}
	decodeBody(t, resp, &reports)
	assert.Equal(t, 1, reports.Total)
}

func TestReconcile_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"missing provider", map[string]string{"start": "2026-03-01", "end": "2026-03-02"}, "provider"},
		{"unknown provider", map[string]string{"provider": "visa", "start": "2026-03-01", "end": "2026-03-02"}, "provider"},
		{"bad start", map[string]string{"provider": "mada", "start": "yesterday", "end": "2026-03-02"}, "start"},
		{"inverted window", map[string]string{"provider": "mada", "start": "2026-03-05", "end": "2026-03-02"}, "end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/reconciliations", tt.body)
			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestSummary_RequiresWindow(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/reconciliations/summary?end=2026-03-02")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "start", body["field"])
}

func TestAnalyzeFraud(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/fraud/analyze", map[string]any{
		"transaction": map[string]any{
			"id":       "pay-1",
			"provider": "stripe",
			"amount":   "100.00",
			"currency": "USD",
		},
		"customer_id": "cust-1",
		"country":     "KP",
	})
	var analysis domain.FraudAnalysis
	decodeBody(t, resp, &analysis)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pay-1", analysis.TransactionID)
	assert.Equal(t, 50, analysis.RiskScore)
	assert.Equal(t, domain.RiskMedium, analysis.RiskLevel)
	assert.Equal(t, domain.ActionAdditionalVerification, analysis.RecommendedAction)
	require.Len(t, analysis.Indicators, 1)
	assert.Equal(t, domain.IndicatorRestrictedCountry, analysis.Indicators[0].Type)
}

func TestAnalyzeFraud_MalformedInput(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/fraud/analyze", map[string]any{
		"transaction": map[string]any{
			"provider": "mada",
			"amount":   "100.00",
			"currency": "USD",
		},
	})
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "currency", body["field"])

	resp, err := http.Post(srv.URL+"/api/v1/fraud/analyze", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransactions_CreateListGet(t *testing.T) {
	srv := newTestServer(t)

	payload := map[string]any{
		"id":          "int-9",
		"provider":    "stripe",
		"customer_id": "cust-2",
		"amount":      42.5,
		"currency":    "USD",
		"created_at":  "2026-03-02T10:00:00Z",
	}
	resp := postJSON(t, srv.URL+"/api/v1/transactions", payload)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/v1/transactions", payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/v1/transactions", map[string]any{
		"provider": "stripe",
		"amount":   "-1",
		"currency": "USD",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/v1/transactions?customer_id=cust-2")
	require.NoError(t, err)
	var list struct {
		Transactions []domain.TransactionRecord `json:"transactions"`
		Total        int                        `json:"total"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, "42.5", list.Transactions[0].Amount.String())

	resp, err = http.Get(srv.URL + "/api/v1/transactions/int-9")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/transactions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/transactions?provider=visa")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestReport_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.URL+"/api/v1/providers/apple_pay/reports", madaReport, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postReport(t, srv.URL+"/api/v1/providers/unknown/reports", madaReport, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(srv.URL+"/api/v1/providers/mada/reports", "text/plain", bytes.NewBufferString("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, resp, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_Degraded(t *testing.T) {
	h := &Handlers{checks: map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}}

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])
	assert.Equal(t, "connection refused", health.Checks["redis"])
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&domain.ValidationError{Field: "provider", Reason: "is required"}, http.StatusBadRequest},
		{domain.ErrRunInProgress, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{&domain.DataSourceError{Source: "provider", Provider: domain.ProviderMada, Err: errors.New("timeout")}, http.StatusBadGateway},
		{&domain.PersistenceError{Op: "reconciliation records", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestParseBound(t *testing.T) {
	start, err := parseBound("start", "2026-03-02", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)

	end, err := parseBound("end", "2026-03-02", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC), end)

	exact, err := parseBound("end", "2026-03-02T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), exact)

	_, err = parseBound("end", "", true)
	assert.True(t, domain.IsValidation(err))
}
