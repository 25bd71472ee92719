// Package config 加载 apeyolo 的运行配置。
//
// 配置文件默认位于数据目录下的 config.yaml，可被 APEYOLO_* 环境变量覆盖，
// 例如 APEYOLO_BROKER_BASE_URL。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 顶层配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Models   ModelsConfig   `mapstructure:"models" yaml:"models"`
	Broker   BrokerConfig   `mapstructure:"broker" yaml:"broker"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Tick     TickConfig     `mapstructure:"tick" yaml:"tick"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Mandate  models.Mandate `mapstructure:"mandate" yaml:"mandate"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ModelsConfig 三个模型层级加对话模型
type ModelsConfig struct {
	Executor  models.AIConfig `mapstructure:"executor" yaml:"executor"`
	Thinker   models.AIConfig `mapstructure:"thinker" yaml:"thinker"`
	Processor models.AIConfig `mapstructure:"processor" yaml:"processor"`
	Chat      models.AIConfig `mapstructure:"chat" yaml:"chat"`
}

// Tier 返回指定层级的模型配置
func (m ModelsConfig) Tier(t models.Tier) models.AIConfig {
	switch t {
	case models.TierExecutor:
		return m.Executor
	case models.TierThinker:
		return m.Thinker
	default:
		return m.Processor
	}
}

// BrokerConfig 券商协作方
type BrokerConfig struct {
	Kind       string        `mapstructure:"kind" yaml:"kind"` // http / mcp
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MCP        MCPConfig     `mapstructure:"mcp" yaml:"mcp"`
	PollPeriod time.Duration `mapstructure:"poll_period" yaml:"poll_period"`
}

// MCPConfig MCP 服务端连接
type MCPConfig struct {
	Transport string   `mapstructure:"transport" yaml:"transport"` // sse / command / http
	Endpoint  string   `mapstructure:"endpoint" yaml:"endpoint"`
	Command   string   `mapstructure:"command" yaml:"command"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// StoreConfig 待审批提案与会话上下文的 KV 存储
type StoreConfig struct {
	Kind          string        `mapstructure:"kind" yaml:"kind"` // memory / redis
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	SweepPeriod   time.Duration `mapstructure:"sweep_period" yaml:"sweep_period"`
}

// DatabaseConfig 审计库
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// TickConfig 自动循环
type TickConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	Symbol   string `mapstructure:"symbol" yaml:"symbol"`
	Lessons  int    `mapstructure:"lessons" yaml:"lessons"`
}

// TimeoutsConfig 各阶段超时
type TimeoutsConfig struct {
	Model      time.Duration `mapstructure:"model" yaml:"model"`
	Validation time.Duration `mapstructure:"validation" yaml:"validation"`
	Stream     time.Duration `mapstructure:"stream" yaml:"stream"`
	Tool       time.Duration `mapstructure:"tool" yaml:"tool"`
}

// LoggingConfig 日志
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// Default 返回默认配置
func Default() *Config {
	ollama := func(name string, think bool) models.AIConfig {
		return models.AIConfig{
			Provider:  models.AIProviderOllama,
			ModelName: name,
			BaseURL:   "http://127.0.0.1:11434",
			Think:     think,
			Timeout:   60 * time.Second,
		}
	}
	return &Config{
		Server: ServerConfig{Addr: ":8088"},
		Models: ModelsConfig{
			Executor:  ollama("qwen3:4b", false),
			Thinker:   ollama("deepseek-r1:14b", true),
			Processor: ollama("qwen3:8b", false),
			Chat:      ollama("qwen3:8b", true),
		},
		Broker: BrokerConfig{
			Kind:       "http",
			BaseURL:    "http://127.0.0.1:5000/api",
			Timeout:    10 * time.Second,
			PollPeriod: 15 * time.Second,
			MCP:        MCPConfig{Transport: "sse"},
		},
		Store: StoreConfig{
			Kind:        "memory",
			RedisAddr:   "127.0.0.1:6379",
			SweepPeriod: time.Minute,
		},
		Database: DatabaseConfig{Path: paths.DatabaseFile()},
		Tick: TickConfig{
			Enabled:  false,
			Schedule: "*/5 9-16 * * 1-5",
			Timezone: "America/New_York",
			Symbol:   "SPY",
			Lessons:  5,
		},
		Timeouts: TimeoutsConfig{
			Model:      90 * time.Second,
			Validation: 20 * time.Second,
			Stream:     3 * time.Minute,
			Tool:       15 * time.Second,
		},
		Mandate: models.Mandate{
			AllowedSymbols: []string{"SPY"},
			Direction:      "SELL_ONLY",
			MinDelta:       0.1,
			MaxDelta:       0.3,
			MaxContracts:   2,
			DailyLossLimit: 1000,
			AllowOvernight: false,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// Load 从默认位置加载
func Load() (*Config, error) {
	return LoadFromPath(paths.ConfigFile())
}

// LoadFromPath 从指定路径加载，文件不存在时写入默认配置
func LoadFromPath(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APEYOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	for _, tier := range models.Tiers {
		m := c.Models.Tier(tier)
		if m.ModelName == "" {
			errs = append(errs, fmt.Errorf("models.%s.model_name is required", tier))
		}
		switch m.Provider {
		case models.AIProviderOllama, models.AIProviderOpenAI, models.AIProviderGemini:
		default:
			errs = append(errs, fmt.Errorf("models.%s.provider %q is not supported", tier, m.Provider))
		}
	}
	switch c.Broker.Kind {
	case "http":
		if c.Broker.BaseURL == "" {
			errs = append(errs, errors.New("broker.base_url is required for http broker"))
		}
	case "mcp":
		if c.Broker.MCP.Endpoint == "" && c.Broker.MCP.Command == "" {
			errs = append(errs, errors.New("broker.mcp needs an endpoint or command"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind %q is not supported", c.Broker.Kind))
	}
	switch c.Store.Kind {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not supported", c.Store.Kind))
	}
	if c.Timeouts.Validation > 0 && c.Timeouts.Model > 0 && c.Timeouts.Validation > c.Timeouts.Model {
		errs = append(errs, errors.New("timeouts.validation must not exceed timeouts.model"))
	}
	return errors.Join(errs...)
}

// SaveToPath 写入配置文件
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
