// Package broker 定义编排层与券商桥接服务之间的唯一接口。
package broker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// VolatilitySymbol 波动率指数代码
const VolatilitySymbol = "VIX"

// Broker 券商协作方
type Broker interface {
	GetMarketData(ctx context.Context, symbol string) (*models.Quote, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetAccount(ctx context.Context) (*models.Account, error)
	RunEngine(ctx context.Context, req EngineRequest) (*models.EngineSignal, error)
	ExecuteTrade(ctx context.Context, order Order) (*models.ExecutionResult, error)
}

// EngineRequest 策略引擎参数
type EngineRequest struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy,omitempty"`
}

// Order 下单请求
type Order struct {
	ProposalID string            `json:"proposalId,omitempty"`
	Action     models.Action     `json:"action"`
	Terms      models.TradeTerms `json:"terms"`
}

// Snapshot 并发拉取标的与 VIX 行情，合成快照
func Snapshot(ctx context.Context, b Broker, symbol string) (models.MarketSnapshot, error) {
	var underlying, vix *models.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := b.GetMarketData(gctx, symbol)
		if err != nil {
			return fmt.Errorf("market data %s: %w", symbol, err)
		}
		underlying = q
		return nil
	})
	g.Go(func() error {
		q, err := b.GetMarketData(gctx, VolatilitySymbol)
		if err != nil {
			return fmt.Errorf("market data %s: %w", VolatilitySymbol, err)
		}
		vix = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.MarketSnapshot{}, err
	}

	ts := underlying.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.MarketSnapshot{
		Symbol:     symbol,
		SPY:        underlying.Price,
		VIX:        vix.Price,
		MarketOpen: underlying.MarketOpen,
		Timestamp:  ts,
	}, nil
}
