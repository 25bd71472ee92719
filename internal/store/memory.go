package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
)

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time // 零值表示永不过期
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory 进程内 KV，读取时惰性过期，超出容量时先清理过期再淘汰最旧条目
type Memory struct {
	mu       sync.Mutex
	clock    clock.Clock
	capacity int
	entries  map[string]entry
}

// NewMemory 创建内存存储；capacity<=0 表示不限容量
func NewMemory(c clock.Clock, capacity int) *Memory {
	if c == nil {
		c = clock.System{}
	}
	return &Memory{
		clock:    c,
		capacity: capacity,
		entries:  make(map[string]entry),
	}
}

var _ KV = (*Memory)(nil)

// Get 读取
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.clock.Now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set 写入
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e := entry{value: append([]byte(nil), value...), createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.entries[key] = e

	if m.capacity > 0 && len(m.entries) > m.capacity {
		m.sweepLocked(now)
		m.evictLocked(key)
	}
	return nil
}

// Delete 删除
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Keys 列出前缀匹配且未过期的键，按写入时间排序
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.entries[keys[i]], m.entries[keys[j]]
		if a.createdAt.Equal(b.createdAt) {
			return keys[i] < keys[j]
		}
		return a.createdAt.Before(b.createdAt)
	})
	return keys, nil
}

// Sweep 清理过期条目
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.clock.Now()), nil
}

// Len 当前条目数（含尚未清理的过期条目）
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// evictLocked 淘汰最旧条目直到不超过容量，keep 为刚写入的键
func (m *Memory) evictLocked(keep string) {
	for len(m.entries) > m.capacity {
		var oldestKey string
		var oldest time.Time
		for k, e := range m.entries {
			if k == keep {
				continue
			}
			if oldestKey == "" || e.createdAt.Before(oldest) || (e.createdAt.Equal(oldest) && k < oldestKey) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(m.entries, oldestKey)
	}
}
