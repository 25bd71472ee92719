// Package clock 提供可注入的时间源，便于在测试中推进虚拟时间。
package clock

import (
	"sync"
	"time"
)

// Clock 时间源
type Clock interface {
	Now() time.Time
}

// System 系统时钟
type System struct{}

// Now 返回当前时间
func (System) Now() time.Time { return time.Now() }

// Manual 手动推进的时钟
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual 创建从 t 开始的手动时钟
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now 返回当前虚拟时间
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance 推进虚拟时间
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set 设置虚拟时间
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
