// Package sse 把编排过程写成 Server-Sent Events，每个会话恰好以一个 done 结束。
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var log = logger.New("SSE")

// ErrClosed 流已结束
var ErrClosed = errors.New("sse stream closed")

// Sink 事件接收方
type Sink interface {
	Send(event Event, data any) error
}

// Writer 写入 http.ResponseWriter 的 Sink，并发安全
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	once    sync.Once
}

// NewWriter 写响应头并返回 Writer
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send 写一个事件；done 之后的事件被丢弃
func (s *Writer) Send(event Event, data any) error {
	if event == EventDone {
		return s.Done(data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(event, data)
}

// Done 写结束事件，重复调用无效
func (s *Writer) Done(data any) error {
	err := ErrClosed
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.write(EventDone, data)
		s.closed = true
	})
	return err
}

func (s *Writer) write(event Event, data any) error {
	if s.closed {
		return ErrClosed
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// Handler 在流上执行的业务逻辑
type Handler func(ctx context.Context, sink Sink) error

// Run 执行 fn 并保证以恰好一个 done 结束。
// timeout 为整个流的墙钟上限，到期后写 error 与 done 并返回，fn 之后的写入被丢弃。
func Run(ctx context.Context, w *Writer, timeout time.Duration, fn Handler) {
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	finished := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("stream handler panicked: %v", p)
				finished <- fmt.Errorf("internal error: %v", p)
			}
		}()
		finished <- fn(ctx, w)
	}()

	var err error
	select {
	case err = <-finished:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperr.Newf(apperr.KindTimeout, "sse", "stream exceeded %s", timeout)
		} else {
			err = ctx.Err()
		}
	}

	if err != nil {
		log.Warn("stream ended with error after %s: %v", time.Since(start).Round(time.Millisecond), err)
		_ = w.Send(EventError, ErrorFrom(err))
	}
	_ = w.Done(Done{Success: err == nil, DurationMs: time.Since(start).Milliseconds()})
}

// ErrorFrom 构造 error 事件
func ErrorFrom(err error) Error {
	return Error{Error: err.Error(), Code: string(apperr.KindOf(err))}
}
