package models

import "time"

// AIProvider 模型供应商
type AIProvider string

const (
	AIProviderOllama AIProvider = "ollama"
	AIProviderOpenAI AIProvider = "openai"
	AIProviderGemini AIProvider = "gemini"
)

// AIConfig 单个模型的连接配置
type AIConfig struct {
	Provider  AIProvider    `json:"provider" mapstructure:"provider" yaml:"provider"`
	ModelName string        `json:"modelName" mapstructure:"model_name" yaml:"model_name"`
	BaseURL   string        `json:"baseUrl,omitempty" mapstructure:"base_url" yaml:"base_url"`
	APIKey    string        `json:"-" mapstructure:"api_key" yaml:"api_key"`
	Think     bool          `json:"think" mapstructure:"think" yaml:"think"`       // 请求模型输出推理过程
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"` // 单次调用超时
}

// Tier 模型层级
type Tier string

const (
	TierExecutor  Tier = "executor"  // 快速检查
	TierThinker   Tier = "thinker"   // 深度分析
	TierProcessor Tier = "processor" // 校验
	TierChat      Tier = "chat"      // 对话
)

// Tiers 按升级顺序排列的层级
var Tiers = []Tier{TierExecutor, TierThinker, TierProcessor}
