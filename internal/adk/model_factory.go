package adk

import (
	"context"
	"fmt"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/ollama"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/openai"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"

	go_openai "github.com/sashabaranov/go-openai"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// ModelFactory 模型工厂，根据配置创建对应的 adk model
type ModelFactory struct{}

// NewModelFactory 创建模型工厂
func NewModelFactory() *ModelFactory {
	return &ModelFactory{}
}

// CreateModel 根据 AI 配置创建对应的模型
func (f *ModelFactory) CreateModel(ctx context.Context, config models.AIConfig) (model.LLM, error) {
	if config.ModelName == "" {
		return nil, fmt.Errorf("model name is required for provider %s", config.Provider)
	}
	switch config.Provider {
	case models.AIProviderOllama:
		return f.createOllamaModel(config), nil
	case models.AIProviderGemini:
		return f.createGeminiModel(ctx, config)
	case models.AIProviderOpenAI:
		return f.createOpenAIModel(config), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// createOllamaModel 创建本地 Ollama 模型
func (f *ModelFactory) createOllamaModel(config models.AIConfig) model.LLM {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	return ollama.New(baseURL, config.ModelName, config.Think)
}

// createGeminiModel 创建 Gemini 模型
func (f *ModelFactory) createGeminiModel(ctx context.Context, config models.AIConfig) (model.LLM, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	return gemini.NewModel(ctx, config.ModelName, clientConfig)
}

// createOpenAIModel 创建 OpenAI 兼容模型
func (f *ModelFactory) createOpenAIModel(config models.AIConfig) model.LLM {
	openaiCfg := go_openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		openaiCfg.BaseURL = config.BaseURL
	}
	return openai.New(config.ModelName, openaiCfg, false)
}
