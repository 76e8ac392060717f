package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"

	_ "modernc.org/sqlite"
)

type stubRunner struct {
	release chan struct{}
	report  *domain.AllocationReport
	err     error
}

func newStubRunner() *stubRunner {
	return &stubRunner{release: make(chan struct{})}
}

func (s *stubRunner) Run(ctx context.Context, req jobqueue.Request) (*domain.AllocationReport, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func newTestHandler(t *testing.T) (*Handler, *jobqueue.Queue, *stubRunner) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache, err := jobqueue.NewCache(db, time.Hour, zerolog.Nop())
	require.NoError(t, err)

	runner := newStubRunner()
	runner.report = &domain.AllocationReport{
		TotalCost:    1000,
		ContractSize: domain.ContractSmall,
		State:        domain.StateSolved,
		Allocations: []domain.AllocationRow{
			{BankID: "B1", DemandHabitat: "H", Ledger: domain.LedgerArea, SupplyHabitat: "H", Tier: domain.TierLocal, Kind: domain.OptionNormal, UnitsSupplied: 1, EffectiveUnits: 1, StockUnitsConsumed: 1, UnitPrice: 1000, Cost: 1000},
		},
	}
	close(runner.release)

	q := jobqueue.NewQueue(cache, runner, 1, time.Second, zerolog.Nop())
	q.Start()
	t.Cleanup(q.Stop)

	return NewHandler(q, cache, zerolog.Nop()), q, runner
}

func router(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleSubmitRejectsEmptyRequest(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitRejectsNonPositiveUnits(t *testing.T) {
	h, _, _ := newTestHandler(t)
	body := `{"demand":[{"habitat":"H","units":0}],"site":{"postcode":"AB1 2CD"}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitAndStatusRoundTrip(t *testing.T) {
	h, _, _ := newTestHandler(t)
	body := `{"demand":[{"habitat":"H","units":1}],"site":{"postcode":"AB1 2CD"}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp submitResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	require.NotEmpty(t, submitResp.JobID)
	require.NotEmpty(t, submitResp.Fingerprint)

	var statusResp statusResponseDTO
	require.Eventually(t, func() bool {
		statusReq := httptest.NewRequest(http.MethodGet, "/jobs/"+submitResp.JobID, nil)
		statusRec := httptest.NewRecorder()
		router(h).ServeHTTP(statusRec, statusReq)
		if statusRec.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(statusRec.Body.Bytes(), &statusResp)
		return statusResp.Status == "done"
	}, time.Second, time.Millisecond)

	require.NotNil(t, statusResp.Result)
	require.InDelta(t, 1000, statusResp.Result.TotalCost, 1e-9)
	require.Len(t, statusResp.Result.Allocations, 1)
}

func TestHandleStatusUnknownJobReturns404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelQueuedJob(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache, err := jobqueue.NewCache(db, time.Hour, zerolog.Nop())
	require.NoError(t, err)

	runner := newStubRunner() // never released, keeps the single worker busy
	q := jobqueue.NewQueue(cache, runner, 1, time.Minute, zerolog.Nop())
	q.Start()
	defer func() { close(runner.release); q.Stop() }()

	h := NewHandler(q, cache, zerolog.Nop())

	blockerID, _, err := q.Submit(jobqueue.Request{Demand: []jobqueue.DemandInput{{Habitat: "A", Units: 1}}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, ok := q.Status(blockerID)
		return ok && rec.State == jobqueue.JobRunning
	}, time.Second, time.Millisecond)

	queuedID, _, err := q.Submit(jobqueue.Request{Demand: []jobqueue.DemandInput{{Habitat: "B", Units: 1}}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+queuedID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec2, ok := q.Status(queuedID)
	require.True(t, ok)
	require.Equal(t, jobqueue.JobCancelled, rec2.State)
}

func TestHandleHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, "connected", body["cache"])
}
