// Package brokertest 提供内存中的券商实现，供测试使用。
package brokertest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// Fake 可编程的券商
type Fake struct {
	mu sync.Mutex

	Quotes    map[string]models.Quote
	Positions []models.Position
	Account   models.Account
	Signal    models.EngineSignal

	// 各操作的注入错误
	MarketErr    error
	PositionsErr error
	AccountErr   error
	EngineErr    error
	TradeErr     error

	Orders []broker.Order
	calls  map[string]int
}

var _ broker.Broker = (*Fake)(nil)

// New 创建默认开盘、SPY 601.23、VIX 14.8、无持仓的券商
func New() *Fake {
	now := time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)
	return &Fake{
		Quotes: map[string]models.Quote{
			"SPY": {Symbol: "SPY", Price: 601.23, MarketOpen: true, Timestamp: now},
			"VIX": {Symbol: "VIX", Price: 14.8, MarketOpen: true, Timestamp: now},
		},
		Account: models.Account{
			AccountID:   "DU123456",
			NetLiq:      decimal.NewFromInt(125000),
			BuyingPower: decimal.NewFromInt(250000),
			Cash:        decimal.NewFromInt(100000),
		},
		Signal: models.EngineSignal{
			Symbol:     "SPY",
			Strategy:   "0dte-put",
			Direction:  "PUT",
			Strike:     decimal.NewFromInt(595),
			Expiry:     "2025-01-15",
			Delta:      -0.15,
			Premium:    decimal.RequireFromString("0.85"),
			Contracts:  1,
			ReadyToRun: true,
		},
		calls: make(map[string]int),
	}
}

// SetMarketOpen 设置开盘标志
func (f *Fake) SetMarketOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, q := range f.Quotes {
		q.MarketOpen = open
		f.Quotes[k] = q
	}
}

// Calls 返回某操作被调用的次数
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

// GetMarketData 实现 broker.Broker
func (f *Fake) GetMarketData(ctx context.Context, symbol string) (*models.Quote, error) {
	f.count("market")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarketErr != nil {
		return nil, f.MarketErr
	}
	q, ok := f.Quotes[symbol]
	if !ok {
		q = models.Quote{Symbol: symbol}
	}
	return &q, nil
}

// GetPositions 实现 broker.Broker
func (f *Fake) GetPositions(ctx context.Context) ([]models.Position, error) {
	f.count("positions")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PositionsErr != nil {
		return nil, f.PositionsErr
	}
	return append([]models.Position(nil), f.Positions...), nil
}

// GetAccount 实现 broker.Broker
func (f *Fake) GetAccount(ctx context.Context) (*models.Account, error) {
	f.count("account")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	a := f.Account
	return &a, nil
}

// RunEngine 实现 broker.Broker
func (f *Fake) RunEngine(ctx context.Context, req broker.EngineRequest) (*models.EngineSignal, error) {
	f.count("engine")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EngineErr != nil {
		return nil, f.EngineErr
	}
	s := f.Signal
	return &s, nil
}

// ExecuteTrade 实现 broker.Broker
func (f *Fake) ExecuteTrade(ctx context.Context, order broker.Order) (*models.ExecutionResult, error) {
	f.count("trade")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TradeErr != nil {
		return nil, f.TradeErr
	}
	f.Orders = append(f.Orders, order)
	return &models.ExecutionResult{
		OrderID:   "ord-1",
		Status:    "Submitted",
		FilledQty: 0,
		Timestamp: time.Date(2025, 1, 15, 11, 0, 1, 0, time.UTC),
	}, nil
}
