package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker/brokertest"
)

func TestPollBroadcastsToSubscribers(t *testing.T) {
	p := NewMarketPusher(brokertest.New(), "SPY", time.Second)
	a, cancelA := p.Subscribe()
	b, cancelB := p.Subscribe()
	defer cancelA()
	defer cancelB()

	require.NoError(t, p.Poll(context.Background()))

	snapA := <-a
	snapB := <-b
	assert.Equal(t, 601.23, snapA.SPY)
	assert.Equal(t, 14.8, snapB.VIX)
	assert.True(t, snapA.MarketOpen)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, snapA, latest)
}

func TestSlowSubscriberKeepsOnlyLatest(t *testing.T) {
	f := brokertest.New()
	p := NewMarketPusher(f, "SPY", time.Second)
	ch, cancel := p.Subscribe()
	defer cancel()

	require.NoError(t, p.Poll(context.Background()))
	q := f.Quotes["SPY"]
	q.Price = 602.5
	f.Quotes["SPY"] = q
	require.NoError(t, p.Poll(context.Background()))

	snap := <-ch
	assert.Equal(t, 602.5, snap.SPY)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected queued snapshot %+v", extra)
	default:
	}
}

func TestSubscribeReplaysLatestAndUnsubscribeCloses(t *testing.T) {
	p := NewMarketPusher(brokertest.New(), "SPY", time.Second)
	require.NoError(t, p.Poll(context.Background()))

	ch, cancel := p.Subscribe()
	snap := <-ch
	assert.Equal(t, "SPY", snap.Symbol)
	assert.Equal(t, 1, p.Subscribers())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, p.Subscribers())
}

func TestPollErrorKeepsLastSnapshot(t *testing.T) {
	f := brokertest.New()
	p := NewMarketPusher(f, "SPY", time.Second)
	require.NoError(t, p.Poll(context.Background()))

	f.MarketErr = errors.New("bridge down")
	assert.Error(t, p.Poll(context.Background()))
	_, ok := p.Latest()
	assert.True(t, ok)
}

func TestClosedMarketSlowsPolling(t *testing.T) {
	assert.True(t, due(1, false))
	assert.False(t, due(1, true))
	assert.False(t, due(9, true))
	assert.True(t, due(10, true))
}

func TestStartStop(t *testing.T) {
	f := brokertest.New()
	p := NewMarketPusher(f, "SPY", 10*time.Millisecond)
	ch, _ := p.Subscribe()

	p.Start(context.Background())
	select {
	case snap := <-ch:
		assert.Equal(t, 601.23, snap.SPY)
	case <-time.After(time.Second):
		t.Fatal("no snapshot pushed")
	}
	p.Stop()
	for range ch {
	}
	assert.Equal(t, 0, p.Subscribers())
}
