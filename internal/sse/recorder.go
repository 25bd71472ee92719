package sse

import (
	"sync"
)

// Recorded 记录下的事件
type Recorded struct {
	Event Event
	Data  any
}

// Recorder 在内存中记录事件的 Sink
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Send 实现 Sink
func (r *Recorder) Send(event Event, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Data: data})
	return nil
}

// Events 已记录的事件
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Names 事件名序列
func (r *Recorder) Names() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}

// Find 第一个指定事件
func (r *Recorder) Find(event Event) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Event == event {
			return e.Data, true
		}
	}
	return nil, false
}
