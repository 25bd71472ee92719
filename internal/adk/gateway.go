package adk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var log = logger.New("Gateway")

// MaxRetries 上游不可用时的默认重试次数
const MaxRetries = 2

// 退避参数，测试中可调小
var (
	RetryBaseDelay = 2 * time.Second
	RetryMaxDelay  = 15 * time.Second
)

// Completion 一次模型调用收集到的输出
type Completion struct {
	Model     string
	Text      string
	Reasoning string
	Calls     []*genai.FunctionCall
	Duration  time.Duration
}

// PartialFunc 流式分块回调，content 与 thinking 至多一个非空
type PartialFunc func(content, thinking string)

// Request 构造单轮请求
func Request(system, prompt string) *model.LLMRequest {
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(prompt)}},
		},
		Config: &genai.GenerateContentConfig{},
	}
	if system != "" {
		req.Config.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	return req
}

// Generate 非流式调用，超时后中止请求并返回 KindTimeout
func Generate(ctx context.Context, llm model.LLM, req *model.LLMRequest, timeout time.Duration) (*Completion, error) {
	return call(ctx, llm, req, false, timeout, nil)
}

// Stream 流式调用，分块按到达顺序回调
func Stream(ctx context.Context, llm model.LLM, req *model.LLMRequest, timeout time.Duration, onPartial PartialFunc) (*Completion, error) {
	return call(ctx, llm, req, true, timeout, onPartial)
}

type event struct {
	resp *model.LLMResponse
	err  error
}

func call(parent context.Context, llm model.LLM, req *model.LLMRequest, stream bool, timeout time.Duration, onPartial PartialFunc) (*Completion, error) {
	start := time.Now()
	ctx, cancel := parent, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	events := make(chan event)
	go func() {
		defer close(events)
		for resp, err := range llm.GenerateContent(ctx, req, stream) {
			select {
			case events <- event{resp, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	out := &Completion{Model: llm.Name()}
	var text, reasoning strings.Builder
	var final *model.LLMResponse

	for {
		select {
		case <-ctx.Done():
			return nil, observe(out, start, timeoutError(parent, llm.Name(), timeout))
		case ev, ok := <-events:
			if !ok {
				out.Duration = time.Since(start)
				fill(out, final, text.String(), reasoning.String())
				return out, observe(out, start, nil)
			}
			if ev.err != nil {
				err := apperr.Classify("model."+llm.Name(), ev.err)
				if errors.Is(ev.err, context.DeadlineExceeded) && parent.Err() == nil {
					err = timeoutError(parent, llm.Name(), timeout)
				}
				return nil, observe(out, start, err)
			}
			if ev.resp == nil || ev.resp.Content == nil {
				continue
			}
			if !ev.resp.Partial {
				final = ev.resp
				continue
			}
			for _, p := range ev.resp.Content.Parts {
				if p.Text == "" {
					continue
				}
				if p.Thought {
					reasoning.WriteString(p.Text)
					if onPartial != nil {
						onPartial("", p.Text)
					}
				} else {
					text.WriteString(p.Text)
					if onPartial != nil {
						onPartial(p.Text, "")
					}
				}
			}
		}
	}
}

// fill 优先使用最终聚合响应，没有时使用累积的分块
func fill(out *Completion, final *model.LLMResponse, text, reasoning string) {
	out.Text, out.Reasoning = text, reasoning
	if final == nil || final.Content == nil {
		return
	}
	var ft, fr strings.Builder
	for _, p := range final.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			out.Calls = append(out.Calls, p.FunctionCall)
		case p.Thought:
			fr.WriteString(p.Text)
		default:
			ft.WriteString(p.Text)
		}
	}
	if ft.Len() > 0 {
		out.Text = ft.String()
	}
	if fr.Len() > 0 {
		out.Reasoning = fr.String()
	}
}

func timeoutError(parent context.Context, name string, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindTimeout, "model."+name, err)
		}
		return err
	}
	return apperr.Newf(apperr.KindTimeout, "model."+name, "no response within %s", timeout)
}

func observe(out *Completion, start time.Time, err error) error {
	metrics.ModelLatency.WithLabelValues(out.Model).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		log.Warn("model %s failed after %s: %v", out.Model, time.Since(start).Round(time.Millisecond), err)
	}
	metrics.ModelCalls.WithLabelValues(out.Model, outcome).Inc()
	return err
}

// IsRetryable 只有上游不可用值得重试；超时与格式错误交由调用方降级
func IsRetryable(err error) bool {
	return apperr.Is(err, apperr.KindOffline)
}

// Retry 带指数退避的重试包装，在父 ctx 未取消的前提下最多重试 maxRetries 次
func Retry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	return RetryIf(ctx, maxRetries, IsRetryable, fn)
}

// RetryIf 同 Retry，由 retryable 决定是否重试
func RetryIf[T any](ctx context.Context, maxRetries int, retryable func(error) bool, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !retryable(err) {
		return result, err
	}

	lastErr := err
	for i := 1; i <= maxRetries; i++ {
		delay := RetryBaseDelay * time.Duration(1<<(i-1))
		if delay > RetryMaxDelay {
			delay = RetryMaxDelay
		}
		log.Warn("retry %d/%d after %v, last error: %v", i, maxRetries, delay, lastErr)

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			log.Info("retry %d/%d succeeded", i, maxRetries)
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return result, err
		}
	}
	var zero T
	return zero, fmt.Errorf("still failing after %d retries: %w", maxRetries, lastErr)
}
