package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, models.AIProviderOllama, cfg.Models.Executor.Provider)
	assert.True(t, cfg.Models.Thinker.Think)
	assert.Equal(t, "http", cfg.Broker.Kind)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Validation)
	assert.Equal(t, []string{"SPY"}, cfg.Mandate.AllowedSymbols)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPathCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Model)
	assert.Equal(t, "*/5 9-16 * * 1-5", cfg.Tick.Schedule)
}

func TestLoadFromPathReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9999"
broker:
  kind: http
  base_url: http://broker.local/api
timeouts:
  model: 30s
  validation: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("APEYOLO_BROKER_BASE_URL", "http://override/api")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "http://override/api", cfg.Broker.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Model)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Validation)
	// 文件未出现的段落保留默认值
	assert.Equal(t, "qwen3:4b", cfg.Models.Executor.ModelName)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Broker.Kind = "fax"
	cfg.Store.Kind = "etcd"
	cfg.Models.Thinker.ModelName = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kind")
	assert.Contains(t, err.Error(), "store.kind")
	assert.Contains(t, err.Error(), "models.thinker.model_name")
}
