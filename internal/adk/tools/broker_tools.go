package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

// registerBrokerTools 注册固定的券商工具集
func (r *Registry) registerBrokerTools() {
	r.Register(Tool{
		Name:        GetMarketData,
		Description: "Get the current price of the underlying, the VIX level and whether the market is open",
		Parameters: objectSchema(map[string]any{
			"symbol": prop("string", "underlying symbol, defaults to SPY"),
		}),
		Handler: r.getMarketData,
	})
	r.Register(Tool{
		Name:        GetPositions,
		Description: "List open positions in the trading account",
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			return r.broker.GetPositions(ctx)
		},
	})
	r.Register(Tool{
		Name:        GetAccount,
		Description: "Get account net liquidation, buying power, cash and day P&L",
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			return r.broker.GetAccount(ctx)
		},
	})
	r.Register(Tool{
		Name:        RunEngine,
		Description: "Run the strategy engine and return its trade signal",
		Parameters: objectSchema(map[string]any{
			"symbol":   prop("string", "underlying symbol, defaults to SPY"),
			"strategy": prop("string", "strategy name, engine default when empty"),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return r.broker.RunEngine(ctx, broker.EngineRequest{
				Symbol:   stringArg(args, "symbol", r.symbol),
				Strategy: stringArg(args, "strategy", ""),
			})
		},
	})
	r.Register(Tool{
		Name:        ExecuteTrade,
		Description: "Execute an approved trade proposal by id, or explicit single-leg terms",
		Parameters: objectSchema(map[string]any{
			"proposalId": prop("string", "id of a pending approved proposal"),
			"action":     prop("string", "BUY, SELL or CLOSE"),
			"symbol":     prop("string", "underlying symbol"),
			"optionType": prop("string", "PUT or CALL, empty for stock"),
			"strike":     prop("number", "option strike"),
			"expiry":     prop("string", "option expiry YYYY-MM-DD"),
			"quantity":   prop("integer", "number of contracts or shares"),
			"price":      prop("number", "limit price"),
		}),
		Handler: r.executeTrade,
	})
}

func (r *Registry) getMarketData(ctx context.Context, args map[string]any) (any, error) {
	return broker.Snapshot(ctx, r.broker, stringArg(args, "symbol", r.symbol))
}

func (r *Registry) executeTrade(ctx context.Context, args map[string]any) (any, error) {
	r.mu.RLock()
	resolver, guard := r.resolver, r.guard
	r.mu.RUnlock()

	var p *models.Proposal
	if id := stringArg(args, "proposalId", ""); id != "" {
		if resolver == nil {
			return nil, apperr.New(apperr.KindInvalid, ExecuteTrade, "proposal lookup is not configured")
		}
		found, err := resolver(ctx, id)
		if err != nil {
			return nil, err
		}
		p = found
	} else {
		terms, action, err := termsFromArgs(args, r.symbol)
		if err != nil {
			return nil, err
		}
		p = &models.Proposal{Action: action, Terms: terms, Source: "direct"}
	}

	if p.Action == models.ActionHold {
		return nil, apperr.New(apperr.KindInvalid, ExecuteTrade, "HOLD is not executable")
	}
	if guard != nil {
		if err := guard(ctx, p); err != nil {
			return nil, err
		}
	}
	return r.broker.ExecuteTrade(ctx, broker.Order{ProposalID: p.ID, Action: p.Action, Terms: p.Terms})
}

func termsFromArgs(args map[string]any, defaultSymbol string) (models.TradeTerms, models.Action, error) {
	action, ok := models.ParseAction(stringArg(args, "action", ""))
	if !ok {
		return models.TradeTerms{}, "", apperr.New(apperr.KindInvalid, ExecuteTrade, "action must be BUY, SELL or CLOSE")
	}
	t := models.TradeTerms{
		Symbol:     strings.ToUpper(stringArg(args, "symbol", defaultSymbol)),
		OptionType: models.OptionType(strings.ToUpper(stringArg(args, "optionType", ""))),
		Strike:     decimalArg(args, "strike"),
		Expiry:     stringArg(args, "expiry", ""),
		Quantity:   intArg(args, "quantity"),
		Price:      decimalArg(args, "price"),
	}
	if t.Quantity <= 0 {
		return t, action, apperr.New(apperr.KindInvalid, ExecuteTrade, "quantity must be positive")
	}
	return t, action, nil
}

func stringArg(args map[string]any, key, def string) string {
	switch v := args[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

func decimalArg(args map[string]any, key string) decimal.Decimal {
	switch v := args[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// describeArgs 用于日志与 SSE 的参数摘要
func describeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, k := range sortedKeys(args) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}
