// Package agent 按层级持有已创建的模型
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/adk/model"

	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// DefaultTimeout 未配置超时时的单次调用上限
const DefaultTimeout = 90 * time.Second

// ModelCreator 根据配置创建模型
type ModelCreator interface {
	CreateModel(ctx context.Context, cfg models.AIConfig) (model.LLM, error)
}

// TierAgent 某一层级的模型
type TierAgent struct {
	Tier   models.Tier
	Config models.AIConfig
	LLM    model.LLM
}

// Name 模型名称
func (a *TierAgent) Name() string {
	return a.LLM.Name()
}

// Timeout 单次调用超时
func (a *TierAgent) Timeout() time.Duration {
	if a.Config.Timeout > 0 {
		return a.Config.Timeout
	}
	return DefaultTimeout
}

// Container 层级容器
type Container struct {
	agents map[models.Tier]*TierAgent
	mu     sync.RWMutex
}

// NewContainer 创建层级容器
func NewContainer() *Container {
	return &Container{
		agents: make(map[models.Tier]*TierAgent),
	}
}

// Load 为每个层级创建模型
func (c *Container) Load(ctx context.Context, creator ModelCreator, cfg config.ModelsConfig) error {
	configs := map[models.Tier]models.AIConfig{
		models.TierExecutor:  cfg.Executor,
		models.TierThinker:   cfg.Thinker,
		models.TierProcessor: cfg.Processor,
		models.TierChat:      cfg.Chat,
	}
	for tier, ac := range configs {
		llm, err := creator.CreateModel(ctx, ac)
		if err != nil {
			return fmt.Errorf("create %s model: %w", tier, err)
		}
		c.Set(tier, ac, llm)
	}
	return nil
}

// Set 设置某层级的模型
func (c *Container) Set(tier models.Tier, cfg models.AIConfig, llm model.LLM) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[tier] = &TierAgent{Tier: tier, Config: cfg, LLM: llm}
}

// Get 获取指定层级
func (c *Container) Get(tier models.Tier) (*TierAgent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[tier]
	if !ok {
		return nil, fmt.Errorf("model tier %s not configured", tier)
	}
	return a, nil
}

// All 获取全部层级，按名称排序
func (c *Container) All() []*TierAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*TierAgent, 0, len(c.agents))
	for _, a := range c.agents {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Tier < result[j].Tier })
	return result
}
