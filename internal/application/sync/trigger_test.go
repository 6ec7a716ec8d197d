package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
)

func TestCycleTrigger(t *testing.T) {
	t.Run("runs a cycle immediately on start", func(t *testing.T) {
		svc, m := newTestService(t, Config{})

		ran := make(chan struct{})
		m.client.On("GetAccessToken", mock.Anything).Return("token", nil)
		m.state.On("HighWaterMark", mock.Anything).Return(nil, nil)
		m.client.On("FetchOrders", mock.Anything, mock.AnythingOfType("time.Time"), "").
			Return(&marketplace.OrderPage{}, nil)
		m.state.On("SaveCycleOutcome", mock.Anything, mock.Anything, "SUCCESS").Return(nil)
		m.notifier.On("Report", mock.Anything, mock.Anything).Return().Run(func(mock.Arguments) {
			select {
			case ran <- struct{}{}:
			default:
			}
		})

		trigger := NewCycleTrigger(svc, time.Hour, zap.NewNop())
		require.NoError(t, trigger.Start(context.Background()))
		defer trigger.Stop(context.Background())

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("cycle did not run after trigger start")
		}
	})

	t.Run("start is idempotent and stop waits for the loop", func(t *testing.T) {
		svc, m := newTestService(t, Config{})

		m.client.On("GetAccessToken", mock.Anything).Return("token", nil)
		m.state.On("HighWaterMark", mock.Anything).Return(nil, nil)
		m.client.On("FetchOrders", mock.Anything, mock.AnythingOfType("time.Time"), "").
			Return(&marketplace.OrderPage{}, nil)
		m.state.On("SaveCycleOutcome", mock.Anything, mock.Anything, "SUCCESS").Return(nil)
		m.notifier.On("Report", mock.Anything, mock.Anything).Return()

		trigger := NewCycleTrigger(svc, time.Hour, zap.NewNop())
		require.NoError(t, trigger.Start(context.Background()))
		require.NoError(t, trigger.Start(context.Background()))

		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, trigger.Stop(stopCtx))
		// Stopping again is a no-op
		assert.NoError(t, trigger.Stop(stopCtx))
	})
}
