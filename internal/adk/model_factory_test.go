package adk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/ollama"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/openai"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

func TestCreateModelOllamaDefaults(t *testing.T) {
	t.Parallel()

	llm, err := NewModelFactory().CreateModel(context.Background(), models.AIConfig{
		Provider:  models.AIProviderOllama,
		ModelName: "qwen3:8b",
		Think:     true,
	})
	require.NoError(t, err)

	m, ok := llm.(*ollama.Model)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:11434", m.BaseURL)
	assert.Equal(t, "qwen3:8b", m.Name())
	assert.True(t, m.Think)
}

func TestCreateModelOpenAIBaseURL(t *testing.T) {
	t.Parallel()

	llm, err := NewModelFactory().CreateModel(context.Background(), models.AIConfig{
		Provider:  models.AIProviderOpenAI,
		ModelName: "deepseek-reasoner",
		BaseURL:   "https://api.deepseek.com/v1",
		APIKey:    "sk-test",
	})
	require.NoError(t, err)

	m, ok := llm.(*openai.Model)
	require.True(t, ok)
	assert.Equal(t, "deepseek-reasoner", m.Name())
	assert.False(t, m.NoSystemRole)
}

func TestCreateModelRejectsBadConfig(t *testing.T) {
	t.Parallel()

	f := NewModelFactory()
	_, err := f.CreateModel(context.Background(), models.AIConfig{Provider: models.AIProviderOllama})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model name is required")

	_, err = f.CreateModel(context.Background(), models.AIConfig{Provider: "bedrock", ModelName: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
