package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarSync/internal/domain/models"
	xlogger "BarSync/pkg/logger"
)

type stubStore struct {
	healthErr error
	changes   []models.MonthlyChange
	gotSymbol string
	gotLimit  int
}

func (s *stubStore) InitSchema(context.Context) error { return nil }
func (s *stubStore) Upsert(context.Context, string, string, []models.Bar) error {
	return nil
}
func (s *stubStore) LastPeriodEnd(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (s *stubStore) ListSeries(context.Context) ([]models.Series, error)     { return nil, nil }
func (s *stubStore) LatestBar(context.Context, string) (*models.Bar, error)  { return nil, nil }
func (s *stubStore) Bars(context.Context, string, int) ([]models.Bar, error) { return nil, nil }
func (s *stubStore) Health(context.Context) error                            { return s.healthErr }
func (s *stubStore) Close() error                                            { return nil }
func (s *stubStore) MonthlyChanges(_ context.Context, symbol string, limit int) ([]models.MonthlyChange, error) {
	s.gotSymbol, s.gotLimit = symbol, limit
	return s.changes, nil
}

type stubReports struct {
	run   *models.RunReport
	audit *models.AuditReport
}

func (s stubReports) LastRun() *models.RunReport     { return s.run }
func (s stubReports) LastAudit() *models.AuditReport { return s.audit }

func serve(t *testing.T, h *OpsHandler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestOpsHandler_Health(t *testing.T) {
	rec, _ := serve(t, NewOpsHandler(xlogger.Nop(), &stubStore{}, nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, NewOpsHandler(xlogger.Nop(), &stubStore{healthErr: errors.New("down")}, nil, nil), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpsHandler_LastRun(t *testing.T) {
	rec, _ := serve(t, NewOpsHandler(xlogger.Nop(), &stubStore{}, stubReports{}, nil), "/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	run := &models.RunReport{RunID: "r-1", Manifest: models.NewManifest(), Counts: map[models.SyncStatus]int{models.StatusSynced: 2}}
	rec, body := serve(t, NewOpsHandler(xlogger.Nop(), &stubStore{}, stubReports{run: run}, nil), "/v1/runs/last")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "r-1", data["run_id"])
}

func TestOpsHandler_LastAuditFilter(t *testing.T) {
	audit := &models.AuditReport{All: []models.Classification{
		{Symbol: "AAA", Status: models.AuditOK},
		{Symbol: "BBB", Status: models.AuditStale},
	}}
	h := NewOpsHandler(xlogger.Nop(), &stubStore{}, nil, stubReports{audit: audit})

	rec, body := serve(t, h, "/v1/audit/last?status=Stale")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])

	rec, _ = serve(t, h, "/v1/audit/last?status=Broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpsHandler_Changes(t *testing.T) {
	store := &stubStore{changes: []models.MonthlyChange{{
		Symbol:    "AAA",
		PeriodEnd: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Close:     decimal.NewFromInt(11),
	}}}
	h := NewOpsHandler(xlogger.Nop(), store, nil, nil)

	rec, body := serve(t, h, "/v1/series/AAA/changes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAA", store.gotSymbol)
	assert.Equal(t, 24, store.gotLimit)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["total"])

	rec, _ = serve(t, h, "/v1/series/AAA/changes?limit=601")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.changes = nil
	rec, _ = serve(t, h, "/v1/series/ZZZ/changes?limit=5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 5, store.gotLimit)
}
