package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
	"github.com/sellerpulse/backend/internal/interfaces/http/dto"
)

type fakeRunner struct {
	running atomic.Bool
	runs    atomic.Int32
	history []marketplace.CycleSummary
	runErr  error
}

func (f *fakeRunner) RunCycle(ctx context.Context) (*marketplace.CycleSummary, error) {
	f.runs.Add(1)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &marketplace.CycleSummary{CycleID: uuid.New()}, nil
}

func (f *fakeRunner) History() []marketplace.CycleSummary { return f.history }
func (f *fakeRunner) IsRunning() bool                     { return f.running.Load() }

type fakeQueue struct{ stats map[string]interface{} }

func (f *fakeQueue) Stats() map[string]interface{} { return f.stats }

type fakePinger struct{ err error }

func (f *fakePinger) Ping() error { return f.err }

func setupRouter(h *SyncHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Health)
	r.POST("/api/v1/sync/trigger", h.TriggerSync)
	r.GET("/api/v1/sync/history", h.History)
	r.GET("/api/v1/tracking/stats", h.TrackingStats)
	return r
}

func TestSyncHandler_Health(t *testing.T) {
	t.Run("returns ok when database is reachable", func(t *testing.T) {
		h := NewSyncHandler(&fakeRunner{}, &fakeQueue{}, &fakePinger{}, zap.NewNop())
		r := setupRouter(h)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("returns 503 when database is down", func(t *testing.T) {
		h := NewSyncHandler(&fakeRunner{}, &fakeQueue{}, &fakePinger{err: errors.New("down")}, zap.NewNop())
		r := setupRouter(h)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	t.Run("accepts trigger and runs cycle in background", func(t *testing.T) {
		runner := &fakeRunner{}
		h := NewSyncHandler(runner, &fakeQueue{}, &fakePinger{}, zap.NewNop())
		r := setupRouter(h)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)

		assert.Eventually(t, func() bool {
			return runner.runs.Load() == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("rejects trigger while a cycle is running", func(t *testing.T) {
		runner := &fakeRunner{}
		runner.running.Store(true)
		h := NewSyncHandler(runner, &fakeQueue{}, &fakePinger{}, zap.NewNop())
		r := setupRouter(h)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, int32(0), runner.runs.Load())
	})
}

func TestSyncHandler_History(t *testing.T) {
	runner := &fakeRunner{
		history: []marketplace.CycleSummary{
			{
				CycleID:    uuid.New(),
				Status:     marketplace.CycleStatusSuccess,
				StartedAt:  time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
				Duration:   42 * time.Second,
				NewOrders:  3,
				TotalValue: decimal.NewFromFloat(99.50),
			},
		},
	}
	h := NewSyncHandler(runner, &fakeQueue{}, &fakePinger{}, zap.NewNop())
	r := setupRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/history", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    []cycleSummaryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "SUCCESS", resp.Data[0].Status)
	assert.Equal(t, 3, resp.Data[0].NewOrders)
	assert.Equal(t, "99.50", resp.Data[0].TotalValue)
	assert.Equal(t, int64(42000), resp.Data[0].DurationMs)
}

func TestSyncHandler_TrackingStats(t *testing.T) {
	queue := &fakeQueue{stats: map[string]interface{}{"pending": 2, "in_flight": "10001"}}
	h := NewSyncHandler(&fakeRunner{}, queue, &fakePinger{}, zap.NewNop())
	r := setupRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/stats", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp.Data["pending"])
	assert.Equal(t, "10001", resp.Data["in_flight"])
}
