package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

func newTestModel(t *testing.T, handler http.HandlerFunc, noSystemRole bool) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return New("gpt-test", cfg, noSystemRole)
}

func userRequest(system, prompt string) *model.LLMRequest {
	return &model.LLMRequest{
		Contents: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(prompt)}},
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}},
		},
	}
}

func TestGenerateNonStreaming(t *testing.T) {
	var got openai.ChatCompletionRequest
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"{\"action\":\"HOLD\"}","reasoning_content":"calm tape"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	}, false)

	var resps []*model.LLMResponse
	for resp, err := range m.GenerateContent(context.Background(), userRequest("be terse", "quote?"), false) {
		require.NoError(t, err)
		resps = append(resps, resp)
	}

	require.Len(t, resps, 1)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "be terse", got.Messages[0].Content)

	parts := resps[0].Content.Parts
	require.Len(t, parts, 2)
	assert.True(t, parts[0].Thought)
	assert.Equal(t, "calm tape", parts[0].Text)
	assert.Equal(t, `{"action":"HOLD"}`, parts[1].Text)
	assert.Equal(t, int32(7), resps[0].UsageMetadata.TotalTokenCount)
}

func TestGenerateStreamingSplitsReasoning(t *testing.T) {
	chunks := []string{
		`{"choices":[{"index":0,"delta":{"reasoning_content":"vix "}}]}`,
		`{"choices":[{"index":0,"delta":{"reasoning_content":"low"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"SPY "}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"c1","type":"function","function":{"name":"get_market_data","arguments":"{\"sym"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"bol\":\"SPY\"}"}}]},"finish_reason":"tool_calls"}]}`,
	}
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, false)

	var thoughts, texts strings.Builder
	var final *model.LLMResponse
	for resp, err := range m.GenerateContent(context.Background(), userRequest("s", "p"), true) {
		require.NoError(t, err)
		if !resp.Partial {
			final = resp
			continue
		}
		for _, p := range resp.Content.Parts {
			if p.Thought {
				thoughts.WriteString(p.Text)
			} else {
				texts.WriteString(p.Text)
			}
		}
	}

	assert.Equal(t, "vix low", thoughts.String())
	assert.Equal(t, "SPY ", texts.String())
	require.NotNil(t, final)
	assert.True(t, final.TurnComplete)

	parts := final.Content.Parts
	require.Len(t, parts, 3)
	assert.True(t, parts[0].Thought)
	assert.Equal(t, "SPY ", parts[1].Text)
	require.NotNil(t, parts[2].FunctionCall)
	assert.Equal(t, "get_market_data", parts[2].FunctionCall.Name)
	assert.Equal(t, map[string]any{"symbol": "SPY"}, parts[2].FunctionCall.Args)
}

func TestGenerateOfflineIsClassified(t *testing.T) {
	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = "http://127.0.0.1:1/v1"
	m := New("gpt-test", cfg, false)

	for _, err := range m.GenerateContent(context.Background(), userRequest("s", "p"), false) {
		require.Error(t, err)
		assert.Equal(t, apperr.KindOffline, apperr.KindOf(err))
	}
}

func TestWithSystemNoSystemRole(t *testing.T) {
	msgs := withSystem([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleAssistant, Content: "hi"},
		{Role: openai.ChatMessageRoleUser, Content: "question"},
	}, "rules", true)

	require.Len(t, msgs, 2)
	assert.Equal(t, "rules\n\nquestion", msgs[1].Content)
}

func TestConvertToolsRequiresSchema(t *testing.T) {
	_, err := convertTools([]*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{Name: "x"}}}})
	assert.Error(t, err)

	tools, err := convertTools([]*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:                 "get_positions",
		ParametersJsonSchema: map[string]any{"type": "object"},
	}}}})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_positions", tools[0].Function.Name)
}
