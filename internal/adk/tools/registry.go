// Package tools 定义编排层可调用的券商工具，并把调用结果统一为 Result 信封。
package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

var log = logger.New("Tools")

// 工具名称
const (
	GetMarketData = "get_market_data"
	GetPositions  = "get_positions"
	GetAccount    = "get_account"
	RunEngine     = "run_engine"
	ExecuteTrade  = "execute_trade"
)

// ErrUnknownOperation 未注册工具的错误文本
const ErrUnknownOperation = "Unknown operation"

// Result 工具调用的统一信封
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler 工具实现
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool 已注册工具
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Handler     Handler
}

// ProposalResolver 按 id 查找待执行提案
type ProposalResolver func(ctx context.Context, id string) (*models.Proposal, error)

// TradeGuard 下单前的约束检查，返回错误即拒绝
type TradeGuard func(ctx context.Context, p *models.Proposal) error

// Registry 工具注册表
type Registry struct {
	broker  broker.Broker
	symbol  string
	timeout time.Duration

	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string
	resolver ProposalResolver
	guard    TradeGuard
}

// NewRegistry 创建注册表并注册券商工具
func NewRegistry(b broker.Broker, symbol string, timeout time.Duration) *Registry {
	if symbol == "" {
		symbol = "SPY"
	}
	r := &Registry{
		broker:  b,
		symbol:  symbol,
		timeout: timeout,
		tools:   make(map[string]Tool),
	}
	r.registerBrokerTools()
	return r
}

// Symbol 默认标的
func (r *Registry) Symbol() string { return r.symbol }

// Register 注册或替换工具
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// SetProposalResolver 设置 execute_trade 按 proposalId 查找提案的方式
func (r *Registry) SetProposalResolver(fn ProposalResolver) {
	r.mu.Lock()
	r.resolver = fn
	r.mu.Unlock()
}

// SetTradeGuard 设置下单前检查
func (r *Registry) SetTradeGuard(fn TradeGuard) {
	r.mu.Lock()
	r.guard = fn
	r.mu.Unlock()
}

// Names 返回按注册顺序排列的工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Declarations 返回供函数调用模型使用的工具声明
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: params,
		})
	}
	return out
}

// GenaiTools 包装为 genai.Tool 列表，可直接放入 GenerateContentConfig
func (r *Registry) GenaiTools() []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: r.Declarations()}}
}

// Execute 执行工具；任何错误与 panic 都转为信封中的 error，不会向上抛出
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ToolCalls.WithLabelValues("unknown", "error").Inc()
		log.Warn("unknown tool %q", name)
		return Result{Error: ErrUnknownOperation}
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error("tool %s panicked: %v\n%s", name, p, debug.Stack())
			res = Result{Error: fmt.Sprintf("%s failed: %v", name, p)}
		}
		status := "ok"
		if !res.Success {
			status = "error"
		}
		metrics.ToolCalls.WithLabelValues(name, status).Inc()
		log.Debug("tool %s %s in %s", name, status, time.Since(start).Round(time.Millisecond))
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	data, err := t.Handler(ctx, args)
	if err != nil {
		log.Warn("tool %s failed: %v", name, err)
		return Result{Error: err.Error()}
	}
	return Result{Success: true, Data: data}
}
