// Package ollama 通过 /api/chat 协议把本地 Ollama 模型适配为 model.LLM。
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var log = logger.New("ollama:model")

var _ model.LLM = &Model{}

// HTTPDoer 便于测试替换
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Model Ollama 模型
type Model struct {
	BaseURL     string
	ModelName   string
	Think       bool          // 请求 message.thinking 字段
	IdleTimeout time.Duration // 流式分块之间的最大间隔，0 表示不限
	Client      HTTPDoer
}

// New 创建 Ollama 模型
func New(baseURL, modelName string, think bool) *Model {
	return &Model{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		ModelName:   modelName,
		Think:       think,
		IdleTimeout: 30 * time.Second,
		Client:      &http.Client{},
	}
}

// Name 返回模型名称
func (m *Model) Name() string { return m.ModelName }

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Thinking  string     `json:"thinking,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type toolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Parameters  any    `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Think    bool           `json:"think,omitempty"`
	Format   string         `json:"format,omitempty"`
	Tools    []toolDef      `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model         string      `json:"model"`
	Message       chatMessage `json:"message"`
	Done          bool        `json:"done"`
	DoneReason    string      `json:"done_reason,omitempty"`
	TotalDuration int64       `json:"total_duration,omitempty"`
	EvalCount     int32       `json:"eval_count,omitempty"`
	PromptEval    int32       `json:"prompt_eval_count,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// GenerateContent 实现 model.LLM 接口
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		body, err := json.Marshal(m.buildRequest(req, stream))
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindInvalid, m.op(), err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindInvalid, m.op(), err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := m.Client.Do(httpReq)
		if err != nil {
			yield(nil, apperr.Classify(m.op(), err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			kind := apperr.KindMalformed
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusNotFound {
				// 模型未加载或服务异常视为不可用
				kind = apperr.KindOffline
			}
			yield(nil, apperr.Newf(kind, m.op(), "status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
			return
		}

		if !stream {
			var out chatResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				yield(nil, apperr.Classify(m.op(), err))
				return
			}
			if out.Error != "" {
				yield(nil, apperr.New(apperr.KindMalformed, m.op(), out.Error))
				return
			}
			yield(finalResponse(out.Message.Thinking, out.Message.Content, out.Message.ToolCalls, &out), nil)
			return
		}

		m.readStream(ctx, cancel, resp.Body, yield)
	}
}

// readStream 逐行解码 NDJSON 分块
func (m *Model) readStream(ctx context.Context, cancel context.CancelFunc, body io.Reader, yield func(*model.LLMResponse, error) bool) {
	var idleFired atomic.Bool
	var idle *time.Timer
	if m.IdleTimeout > 0 {
		idle = time.AfterFunc(m.IdleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer idle.Stop()
	}

	var thinking, content strings.Builder
	var calls []toolCall
	dec := json.NewDecoder(body)
	for {
		var chunk chatResponse
		err := dec.Decode(&chunk)
		if errors.Is(err, io.EOF) {
			yield(nil, apperr.New(apperr.KindOffline, m.op(), "stream ended before done"))
			return
		}
		if err != nil {
			if idleFired.Load() {
				yield(nil, apperr.Newf(apperr.KindTimeout, m.op(), "no chunk within %s", m.IdleTimeout))
				return
			}
			if ctx.Err() != nil {
				yield(nil, apperr.Classify(m.op(), ctx.Err()))
				return
			}
			yield(nil, apperr.Classify(m.op(), err))
			return
		}
		if idle != nil {
			idle.Reset(m.IdleTimeout)
		}
		if chunk.Error != "" {
			yield(nil, apperr.New(apperr.KindMalformed, m.op(), chunk.Error))
			return
		}

		if t := chunk.Message.Thinking; t != "" {
			thinking.WriteString(t)
			if !yield(partial(&genai.Part{Text: t, Thought: true}), nil) {
				return
			}
		}
		if c := chunk.Message.Content; c != "" {
			content.WriteString(c)
			if !yield(partial(&genai.Part{Text: c}), nil) {
				return
			}
		}
		calls = append(calls, chunk.Message.ToolCalls...)

		if chunk.Done {
			log.Debug("%s done: eval_count=%d total=%s", m.ModelName, chunk.EvalCount, time.Duration(chunk.TotalDuration))
			yield(finalResponse(thinking.String(), content.String(), calls, &chunk), nil)
			return
		}
	}
}

func (m *Model) op() string { return "ollama." + m.ModelName }

func (m *Model) buildRequest(req *model.LLMRequest, stream bool) chatRequest {
	out := chatRequest{Model: m.ModelName, Stream: stream, Think: m.Think}
	if cfg := req.Config; cfg != nil {
		if sys := textOf(cfg.SystemInstruction); sys != "" {
			out.Messages = append(out.Messages, chatMessage{Role: "system", Content: sys})
		}
		if cfg.ThinkingConfig != nil {
			out.Think = true
		}
		if cfg.ResponseMIMEType == "application/json" {
			out.Format = "json"
		}
		opts := map[string]any{}
		if cfg.Temperature != nil {
			opts["temperature"] = *cfg.Temperature
		}
		if cfg.MaxOutputTokens > 0 {
			opts["num_predict"] = cfg.MaxOutputTokens
		}
		if len(opts) > 0 {
			out.Options = opts
		}
		for _, tool := range cfg.Tools {
			if tool == nil {
				continue
			}
			for _, fd := range tool.FunctionDeclarations {
				var def toolDef
				def.Type = "function"
				def.Function.Name = fd.Name
				def.Function.Description = fd.Description
				def.Function.Parameters = fd.ParametersJsonSchema
				if def.Function.Parameters == nil {
					def.Function.Parameters = fd.Parameters
				}
				out.Tools = append(out.Tools, def)
			}
		}
	}
	for _, c := range req.Contents {
		out.Messages = append(out.Messages, toMessages(c)...)
	}
	return out
}

func toMessages(c *genai.Content) []chatMessage {
	if c == nil {
		return nil
	}
	role := "user"
	if c.Role == genai.RoleModel {
		role = "assistant"
	} else if c.Role == "system" {
		role = "system"
	}
	var out []chatMessage
	msg := chatMessage{Role: role}
	for _, p := range c.Parts {
		switch {
		case p.FunctionResponse != nil:
			data, _ := json.Marshal(p.FunctionResponse.Response)
			out = append(out, chatMessage{Role: "tool", Content: string(data)})
		case p.FunctionCall != nil:
			var tc toolCall
			tc.Function.Name = p.FunctionCall.Name
			tc.Function.Arguments = p.FunctionCall.Args
			msg.ToolCalls = append(msg.ToolCalls, tc)
		case p.Thought:
			msg.Thinking += p.Text
		default:
			msg.Content += p.Text
		}
	}
	if msg.Content != "" || msg.Thinking != "" || len(msg.ToolCalls) > 0 {
		out = append(out, msg)
	}
	return out
}

func textOf(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var parts []string
	for _, p := range c.Parts {
		if p.Text != "" && !p.Thought {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func partial(p *genai.Part) *model.LLMResponse {
	return &model.LLMResponse{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{p}},
		Partial: true,
	}
}

func finalResponse(thinking, content string, calls []toolCall, meta *chatResponse) *model.LLMResponse {
	c := &genai.Content{Role: genai.RoleModel}
	if thinking != "" {
		c.Parts = append(c.Parts, &genai.Part{Text: thinking, Thought: true})
	}
	if content != "" {
		c.Parts = append(c.Parts, &genai.Part{Text: content})
	}
	for i, tc := range calls {
		c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   fmt.Sprintf("call_%d", i),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		}})
	}
	finish := genai.FinishReasonStop
	if meta.DoneReason == "length" {
		finish = genai.FinishReasonMaxTokens
	}
	return &model.LLMResponse{
		Content:      c,
		FinishReason: finish,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     meta.PromptEval,
			CandidatesTokenCount: meta.EvalCount,
			TotalTokenCount:      meta.PromptEval + meta.EvalCount,
		},
		TurnComplete: true,
	}
}
