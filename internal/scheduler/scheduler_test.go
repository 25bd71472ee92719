package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/commandcenter"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

type countingTicker struct {
	n   atomic.Int32
	err error
}

func (c *countingTicker) Tick(ctx context.Context) (*models.TickResult, error) {
	c.n.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &models.TickResult{Decision: models.DecisionWait}, nil
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(&countingTicker{}, "not a schedule", "")
	assert.ErrorContains(t, err, "parse schedule")

	_, err = New(&countingTicker{}, "*/5 * * * *", "Mars/Olympus")
	assert.ErrorContains(t, err, "load timezone")
}

func TestNextRunUsesLocation(t *testing.T) {
	s, err := New(&countingTicker{}, "30 9 * * *", "America/New_York")
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, "America/New_York", next.Location().String())
}

func TestRunToleratesSkippedAndFailedTicks(t *testing.T) {
	ct := &countingTicker{err: commandcenter.ErrTickInProgress}
	s, err := New(ct, "@every 1h", "UTC")
	require.NoError(t, err)

	s.run()
	ct.err = nil
	s.run()
	assert.Equal(t, int32(2), ct.n.Load())
}

func TestEverySecondFires(t *testing.T) {
	ct := &countingTicker{}
	s, err := New(ct, "@every 1s", "UTC")
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return ct.n.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
