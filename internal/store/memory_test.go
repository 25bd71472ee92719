package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 14, 14, 30, 0, 0, time.UTC)

func TestMemoryLazyExpiry(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(epoch)
	m := NewMemory(clk, 0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "p:1", []byte("a"), time.Hour))
	require.NoError(t, m.Set(ctx, "p:2", []byte("b"), 0))

	clk.Advance(59 * time.Minute)
	v, ok, err := m.Get(ctx, "p:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	clk.Advance(time.Minute)
	_, ok, err = m.Get(ctx, "p:1")
	require.NoError(t, err)
	assert.False(t, ok, "expired on read")
	assert.Equal(t, 1, m.Len(), "expired entry removed on read")

	_, ok, _ = m.Get(ctx, "p:2")
	assert.True(t, ok, "zero ttl never expires")
}

func TestMemorySweep(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(epoch)
	m := NewMemory(clk, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("k%d", i), nil, time.Duration(i+1)*time.Minute))
	}
	clk.Advance(3 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, m.Len())
}

func TestMemoryCapacityEvictsExpiredThenOldest(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(epoch)
	m := NewMemory(clk, 3)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "old", nil, time.Minute))
	clk.Advance(time.Second)
	require.NoError(t, m.Set(ctx, "a", nil, time.Hour))
	clk.Advance(time.Second)
	require.NoError(t, m.Set(ctx, "b", nil, time.Hour))
	clk.Advance(2 * time.Minute) // old 已过期

	require.NoError(t, m.Set(ctx, "c", nil, time.Hour))
	keys, _ := m.Keys(ctx, "")
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, m.Set(ctx, "d", nil, time.Hour))
	keys, _ = m.Keys(ctx, "")
	assert.Equal(t, []string{"b", "c", "d"}, keys, "oldest live entry evicted")
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	t.Parallel()
	m := NewMemory(nil, 0)
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[1] = 'y'
	v2, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v2))
}

type item struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestTyped(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(epoch)
	kv := NewMemory(clk, 0)
	ctx := context.Background()
	items := NewTyped[item](kv, "item:", 10*time.Minute)

	require.NoError(t, items.Put(ctx, "1", item{Name: "one", N: 1}))
	clk.Advance(time.Second)
	require.NoError(t, items.Put(ctx, "2", item{Name: "two", N: 2}))
	require.NoError(t, kv.Set(ctx, "other:1", []byte("{}"), 0))

	got, ok, err := items.Get(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item{Name: "one", N: 1}, got)

	list, err := items.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []item{{"one", 1}, {"two", 2}}, list)

	require.NoError(t, items.Delete(ctx, "1"))
	_, ok, _ = items.Get(ctx, "1")
	assert.False(t, ok)

	clk.Advance(10 * time.Minute)
	list, err = items.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTypedDecodeError(t *testing.T) {
	t.Parallel()
	kv := NewMemory(nil, 0)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "item:bad", []byte("not json"), 0))

	_, ok, err := NewTyped[item](kv, "item:", 0).Get(ctx, "bad")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, NewMemory(nil, 0), time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
