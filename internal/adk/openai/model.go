package openai

import (
	"context"
	"errors"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var modelLog = logger.New("openai:model")

var _ model.LLM = &Model{}

var (
	ErrNoChoicesInResponse = errors.New("no choices in OpenAI response")
)

// Model OpenAI 兼容的 model.LLM 实现，支持 reasoning_content
type Model struct {
	Client       *openai.Client
	ModelName    string
	NoSystemRole bool // 不支持 system role 时把系统指令并入首条用户消息
}

// New 创建模型
func New(modelName string, cfg openai.ClientConfig, noSystemRole bool) *Model {
	return &Model{
		Client:       openai.NewClientWithConfig(cfg),
		ModelName:    modelName,
		NoSystemRole: noSystemRole,
	}
}

// Name 返回模型名称
func (o *Model) Name() string {
	return o.ModelName
}

// GenerateContent 实现 model.LLM 接口
func (o *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	if stream {
		return o.generateStream(ctx, req)
	}
	return o.generate(ctx, req)
}

func (o *Model) op() string { return "openai." + o.ModelName }

// generate 非流式生成
func (o *Model) generate(ctx context.Context, req *model.LLMRequest) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		openaiReq, err := toChatCompletionRequest(req, o.ModelName, o.NoSystemRole)
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindInvalid, o.op(), err))
			return
		}

		resp, err := o.Client.CreateChatCompletion(ctx, openaiReq)
		if err != nil {
			yield(nil, apperr.Classify(o.op(), err))
			return
		}

		llmResp, err := convertChatCompletionResponse(&resp)
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindMalformed, o.op(), err))
			return
		}
		yield(llmResp, nil)
	}
}

// generateStream 流式生成
func (o *Model) generateStream(ctx context.Context, req *model.LLMRequest) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		openaiReq, err := toChatCompletionRequest(req, o.ModelName, o.NoSystemRole)
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindInvalid, o.op(), err))
			return
		}
		openaiReq.Stream = true
		openaiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := o.Client.CreateChatCompletionStream(ctx, openaiReq)
		if err != nil {
			yield(nil, apperr.Classify(o.op(), err))
			return
		}
		defer stream.Close()

		agg := newStreamAggregator()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				modelLog.Warn("stream interrupted: %v", err)
				yield(nil, apperr.Classify(o.op(), err))
				return
			}
			for _, partial := range agg.add(chunk) {
				if !yield(partial, nil) {
					return
				}
			}
		}
		yield(agg.final(), nil)
	}
}

// streamAggregator 聚合流式分块，最终给出完整响应
type streamAggregator struct {
	text      strings.Builder
	reasoning strings.Builder
	toolCalls map[int]*toolCallBuilder
	finish    genai.FinishReason
	usage     *genai.GenerateContentResponseUsageMetadata
}

func newStreamAggregator() *streamAggregator {
	return &streamAggregator{toolCalls: make(map[int]*toolCallBuilder)}
}

// add 处理一个分块，返回需要立即下发的部分响应
func (a *streamAggregator) add(chunk openai.ChatCompletionStreamResponse) []*model.LLMResponse {
	if chunk.Usage != nil {
		a.usage = &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(chunk.Usage.PromptTokens),
			CandidatesTokenCount: int32(chunk.Usage.CompletionTokens),
			TotalTokenCount:      int32(chunk.Usage.TotalTokens),
		}
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	var out []*model.LLMResponse
	if choice.Delta.ReasoningContent != "" {
		a.reasoning.WriteString(choice.Delta.ReasoningContent)
		out = append(out, partialResponse(&genai.Part{Text: choice.Delta.ReasoningContent, Thought: true}))
	}
	if choice.Delta.Content != "" {
		a.text.WriteString(choice.Delta.Content)
		out = append(out, partialResponse(&genai.Part{Text: choice.Delta.Content}))
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		b, ok := a.toolCalls[idx]
		if !ok {
			b = &toolCallBuilder{}
			a.toolCalls[idx] = b
		}
		if tc.ID != "" {
			b.id = tc.ID
		}
		if tc.Function.Name != "" {
			b.name = tc.Function.Name
		}
		b.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != "" {
		a.finish = convertFinishReason(string(choice.FinishReason))
	}
	return out
}

// final 返回聚合后的完整响应：推理在前，其次正文，最后工具调用
func (a *streamAggregator) final() *model.LLMResponse {
	content := &genai.Content{Role: genai.RoleModel}
	if a.reasoning.Len() > 0 {
		content.Parts = append(content.Parts, &genai.Part{Text: a.reasoning.String(), Thought: true})
	}
	if a.text.Len() > 0 {
		content.Parts = append(content.Parts, &genai.Part{Text: a.text.String()})
	}
	for _, idx := range sortedKeys(a.toolCalls) {
		b := a.toolCalls[idx]
		content.Parts = append(content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   b.id,
				Name: b.name,
				Args: parseJSONArgs(b.args.String()),
			},
		})
	}
	return &model.LLMResponse{
		Content:       content,
		UsageMetadata: a.usage,
		FinishReason:  a.finish,
		TurnComplete:  true,
	}
}

func partialResponse(part *genai.Part) *model.LLMResponse {
	return &model.LLMResponse{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{part}},
		Partial: true,
	}
}

// toolCallBuilder 用于聚合流式工具调用
type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// sortedKeys 返回排序后的 map keys
func sortedKeys(m map[int]*toolCallBuilder) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
