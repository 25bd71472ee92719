package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

// ToolCaller 按名称调用远端工具并返回文本结果
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// MCP 通过 MCP 会话调用券商桥接暴露的工具
type MCP struct {
	caller ToolCaller
}

var _ Broker = (*MCP)(nil)

// NewMCP 创建基于 MCP 的券商客户端
func NewMCP(caller ToolCaller) *MCP {
	return &MCP{caller: caller}
}

// GetMarketData 获取单个标的行情
func (m *MCP) GetMarketData(ctx context.Context, symbol string) (*models.Quote, error) {
	var q models.Quote
	if err := m.call(ctx, "get_market_data", map[string]any{"symbol": symbol}, &q); err != nil {
		return nil, err
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return &q, nil
}

// GetPositions 获取持仓
func (m *MCP) GetPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	if err := m.call(ctx, "get_positions", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount 获取账户
func (m *MCP) GetAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	if err := m.call(ctx, "get_account", map[string]any{}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RunEngine 运行策略引擎
func (m *MCP) RunEngine(ctx context.Context, req EngineRequest) (*models.EngineSignal, error) {
	args := map[string]any{"symbol": req.Symbol}
	if req.Strategy != "" {
		args["strategy"] = req.Strategy
	}
	var s models.EngineSignal
	if err := m.call(ctx, "run_engine", args, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExecuteTrade 提交订单
func (m *MCP) ExecuteTrade(ctx context.Context, order Order) (*models.ExecutionResult, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "broker.mcp execute_trade", err)
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "broker.mcp execute_trade", err)
	}
	var res models.ExecutionResult
	if err := m.call(ctx, "execute_trade", args, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *MCP) call(ctx context.Context, name string, args map[string]any, out any) error {
	text, err := m.caller.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apperr.Wrap(apperr.KindMalformed, "broker.mcp "+name, fmt.Errorf("decode result: %w", err))
	}
	return nil
}
