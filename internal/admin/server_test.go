package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/model"
	"github.com/artemshloyda/popularfeed/internal/scheduler"
	"github.com/artemshloyda/popularfeed/internal/storage"
	"github.com/artemshloyda/popularfeed/internal/worker"
)

type fakeStatus struct {
	report model.CycleReport
	ok     bool
}

func (f fakeStatus) State() scheduler.State { return scheduler.StateIdle }

func (f fakeStatus) LastReport() (model.CycleReport, bool) { return f.report, f.ok }

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) Count(context.Context) (int64, error) { return f.n, f.err }

type fakeJournal struct{ st storage.DeliveryStats }

func (f fakeJournal) RecordDelivery(context.Context, storage.Delivery) error { return nil }

func (f fakeJournal) DeliveryStats(context.Context) (storage.DeliveryStats, error) { return f.st, nil }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(":0", Deps{Metrics: metrics.New(), Status: fakeStatus{}}, nil)

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["state"])
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.Group(metrics.GroupDispatched)
	s := New(":0", Deps{Metrics: m}, nil)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "popularfeed_groups_total"))
}

func TestServer_Stats(t *testing.T) {
	s := New(":0", Deps{
		Metrics: metrics.New(),
		Status:  fakeStatus{report: model.CycleReport{ID: "c1", Candidates: 5, Dispatched: 2}, ok: true},
		Store:   fakeCounter{n: 42},
		Journal: fakeJournal{st: storage.DeliveryStats{Total: 3, OK: 2, Failed: 1}},
		Workers: func() worker.Stats { return worker.Stats{Groups: 2, Delivered: 2, Failed: 1} },
	}, nil)

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State        string            `json:"state"`
		LastCycle    model.CycleReport `json:"last_cycle"`
		DedupEntries int64             `json:"dedup_entries"`
		Deliveries   map[string]int64  `json:"deliveries"`
		Worker       map[string]int64  `json:"worker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "idle", body.State)
	assert.Equal(t, "c1", body.LastCycle.ID)
	assert.Equal(t, 2, body.LastCycle.Dispatched)
	assert.Equal(t, int64(42), body.DedupEntries)
	assert.Equal(t, int64(1), body.Deliveries["failed"])
	assert.Equal(t, int64(2), body.Worker["delivered"])
}

func TestServer_StatsStoreError(t *testing.T) {
	s := New(":0", Deps{Store: fakeCounter{err: errors.New("down")}}, nil)

	rec := get(t, s, "/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}

func TestServer_NoMetrics(t *testing.T) {
	s := New(":0", Deps{}, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
}
