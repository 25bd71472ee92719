// Package adktest 提供按脚本应答的 model.LLM，供各包测试使用。
package adktest

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Reply 一次调用的脚本
type Reply struct {
	Text     string
	Thinking string
	Chunks   []string // 流式时按块下发，为空则整段下发 Text
	Calls    []*genai.FunctionCall
	Err      error
	Delay    time.Duration // 在应答前阻塞，ctx 结束则返回 ctx.Err()
}

// Fake 脚本化模型，非流式与流式均可
type Fake struct {
	ModelName string
	Replies   []Reply // 依次消费，最后一个重复使用
	Handler   func(req *model.LLMRequest) Reply

	mu    sync.Mutex
	calls []*model.LLMRequest
}

var _ model.LLM = (*Fake)(nil)

// New 创建依次返回 replies 的模型
func New(name string, replies ...Reply) *Fake {
	return &Fake{ModelName: name, Replies: replies}
}

// Text 创建始终返回 text 的模型
func Text(name, text string) *Fake {
	return New(name, Reply{Text: text})
}

// Name 模型名称
func (f *Fake) Name() string {
	if f.ModelName == "" {
		return "fake"
	}
	return f.ModelName
}

// CallCount 已调用次数
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastPrompt 最近一次请求的用户文本与系统指令
func (f *Fake) LastPrompt() (system, user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return "", ""
	}
	req := f.calls[len(f.calls)-1]
	if req.Config != nil && req.Config.SystemInstruction != nil {
		system = joinText(req.Config.SystemInstruction)
	}
	for _, c := range req.Contents {
		user += joinText(c)
	}
	return system, user
}

func (f *Fake) next(req *model.LLMRequest) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	if f.Handler != nil {
		h := f.Handler
		f.mu.Unlock()
		defer f.mu.Lock()
		return h(req)
	}
	if len(f.Replies) == 0 {
		return Reply{}
	}
	if n >= len(f.Replies) {
		n = len(f.Replies) - 1
	}
	return f.Replies[n]
}

// GenerateContent 实现 model.LLM
func (f *Fake) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		r := f.next(req)
		if r.Delay > 0 {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-time.After(r.Delay):
			}
		}
		if r.Err != nil {
			yield(nil, r.Err)
			return
		}
		if stream {
			if r.Thinking != "" && !yield(partial(&genai.Part{Text: r.Thinking, Thought: true}), nil) {
				return
			}
			chunks := r.Chunks
			if len(chunks) == 0 && r.Text != "" {
				chunks = []string{r.Text}
			}
			for _, c := range chunks {
				if !yield(partial(&genai.Part{Text: c}), nil) {
					return
				}
			}
		}
		text := r.Text
		if text == "" {
			text = strings.Join(r.Chunks, "")
		}
		content := &genai.Content{Role: genai.RoleModel}
		if r.Thinking != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: r.Thinking, Thought: true})
		}
		if text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		for _, c := range r.Calls {
			content.Parts = append(content.Parts, &genai.Part{FunctionCall: c})
		}
		yield(&model.LLMResponse{Content: content, TurnComplete: true}, nil)
	}
}

func partial(p *genai.Part) *model.LLMResponse {
	return &model.LLMResponse{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{p}}, Partial: true}
}

func joinText(c *genai.Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		if !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
