package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker/brokertest"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

func newTestRouter() (*Router, *brokertest.Fake) {
	b := brokertest.New()
	return NewRouter(NewRegistry(b, "SPY", time.Second)), b
}

func TestUnknownOperation(t *testing.T) {
	r, _ := newTestRouter()
	inv := r.Execute(context.Background(), "launch_rocket", nil)
	assert.False(t, inv.Result.Success)
	assert.Equal(t, "Unknown operation", inv.Result.Error)
}

func TestPanicBecomesEnvelopeError(t *testing.T) {
	r, _ := newTestRouter()
	r.Registry().Register(Tool{Name: "boom", Handler: func(context.Context, map[string]any) (any, error) {
		panic("bad state")
	}})

	var inv Invocation
	require.NotPanics(t, func() { inv = r.Execute(context.Background(), "boom", nil) })
	assert.False(t, inv.Result.Success)
	assert.Contains(t, inv.Result.Error, "bad state")
}

func TestMarketDataAndFormat(t *testing.T) {
	r, _ := newTestRouter()
	inv := r.Execute(context.Background(), GetMarketData, nil)
	require.True(t, inv.Result.Success)
	assert.Equal(t, "SPY: $601.23 | VIX: 14.80 | Market: OPEN", inv.Summary)

	snap, ok := inv.Result.Data.(models.MarketSnapshot)
	require.True(t, ok)
	assert.Equal(t, 601.23, snap.SPY, "formatting leaves data untouched")
}

func TestBrokerErrorIsCaptured(t *testing.T) {
	r, b := newTestRouter()
	b.PositionsErr = apperr.New(apperr.KindOffline, "bridge", "not authenticated")

	inv := r.Execute(context.Background(), GetPositions, nil)
	assert.False(t, inv.Result.Success)
	assert.Equal(t, "bridge: not authenticated", inv.Result.Error)
	assert.Equal(t, "get_positions failed: bridge: not authenticated", inv.Summary)
}

func TestExecuteActionLine(t *testing.T) {
	r, b := newTestRouter()
	b.Positions = []models.Position{{Symbol: "SPY 250115P595", SecType: "OPT", Quantity: -1, UnrealizedPL: decimal.NewFromInt(12)}}

	inv, ok := r.ExecuteAction(context.Background(), "Let me check.\nACTION: get_positions()\n")
	require.True(t, ok)
	assert.True(t, inv.Result.Success)
	assert.Equal(t, "Positions (1): -1 SPY 250115P595 (P&L $12.00)", inv.Summary)

	_, ok = r.ExecuteAction(context.Background(), "no tool here")
	assert.False(t, ok)
}

func TestExecuteFunctionCalls(t *testing.T) {
	r, _ := newTestRouter()
	invs := r.ExecuteFunctionCalls(context.Background(), []*genai.FunctionCall{
		{ID: "c1", Name: GetAccount},
		{ID: "c2", Name: "nope"},
	})
	require.Len(t, invs, 2)
	assert.True(t, invs[0].Result.Success)
	assert.Contains(t, invs[0].Summary, "Net Liq: $")
	assert.Equal(t, "c2", invs[1].ID)

	resp := invs[1].Response()
	assert.Equal(t, "nope", resp.Name)
	assert.Equal(t, "Unknown operation", resp.Response["error"])
}

func TestExecuteTradeByProposal(t *testing.T) {
	r, b := newTestRouter()
	proposal := &models.Proposal{
		ID:     "p1",
		Action: models.ActionSell,
		Terms:  models.TradeTerms{Symbol: "SPY", OptionType: models.OptionPut, Strike: decimal.NewFromInt(595), Quantity: 1},
	}
	r.Registry().SetProposalResolver(func(_ context.Context, id string) (*models.Proposal, error) {
		if id == "p1" {
			return proposal, nil
		}
		return nil, apperr.New(apperr.KindNotFound, "proposals", "proposal not found")
	})

	inv := r.Execute(context.Background(), ExecuteTrade, map[string]any{"proposalId": "p1"})
	require.True(t, inv.Result.Success, inv.Result.Error)
	require.Len(t, b.Orders, 1)
	assert.Equal(t, "p1", b.Orders[0].ProposalID)

	inv = r.Execute(context.Background(), ExecuteTrade, map[string]any{"proposalId": "gone"})
	assert.Equal(t, "proposals: proposal not found", inv.Result.Error)

	r.Registry().SetTradeGuard(func(context.Context, *models.Proposal) error { return errors.New("mandate: quantity exceeds max") })
	inv = r.Execute(context.Background(), ExecuteTrade, map[string]any{"proposalId": "p1"})
	assert.False(t, inv.Result.Success)
	assert.Len(t, b.Orders, 1, "guard blocks the order")
}

func TestExecuteTradeByTerms(t *testing.T) {
	r, b := newTestRouter()
	inv := r.Execute(context.Background(), ExecuteTrade, map[string]any{
		"action": "sell", "optionType": "put", "strike": 590.0, "quantity": 2.0, "price": "0.75",
	})
	require.True(t, inv.Result.Success, inv.Result.Error)
	require.Len(t, b.Orders, 1)
	o := b.Orders[0]
	assert.Equal(t, models.ActionSell, o.Action)
	assert.Equal(t, "SPY", o.Terms.Symbol)
	assert.Equal(t, 2, o.Terms.Quantity)
	assert.True(t, decimal.RequireFromString("0.75").Equal(o.Terms.Price))

	inv = r.Execute(context.Background(), ExecuteTrade, map[string]any{"action": "HOLD", "quantity": 1.0})
	assert.Equal(t, "execute_trade: HOLD is not executable", inv.Result.Error)
	inv = r.Execute(context.Background(), ExecuteTrade, map[string]any{"action": "SELL"})
	assert.Equal(t, "execute_trade: quantity must be positive", inv.Result.Error)
}

func TestDeclarations(t *testing.T) {
	r, _ := newTestRouter()
	decls := r.Registry().Declarations()
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
		assert.NotNil(t, d.ParametersJsonSchema)
	}
	assert.Equal(t, []string{GetMarketData, GetPositions, GetAccount, RunEngine, ExecuteTrade}, names)
}

func TestFormatSignal(t *testing.T) {
	assert.Equal(t, "Engine: no trade (VIX too low)", FormatSignal(models.EngineSignal{Reason: "VIX too low"}))
	s := FormatSignal(models.EngineSignal{Strategy: "0dte", Direction: "PUT", Strike: decimal.NewFromInt(595),
		Expiry: "2025-01-15", Delta: -0.15, Premium: decimal.RequireFromString("0.85"), Contracts: 1, ReadyToRun: true})
	assert.Equal(t, "Engine: 0dte PUT 595 2025-01-15 delta -0.15 premium $0.85 x1", s)
}
