package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote 单个标的行情
type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Bid        float64   `json:"bid,omitempty"`
	Ask        float64   `json:"ask,omitempty"`
	MarketOpen bool      `json:"marketOpen"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarketSnapshot 行情快照
type MarketSnapshot struct {
	Symbol     string    `json:"symbol,omitempty"`
	SPY        float64   `json:"spy"`
	VIX        float64   `json:"vix"`
	MarketOpen bool      `json:"marketOpen"`
	Timestamp  time.Time `json:"timestamp"`
}

// Position 持仓
type Position struct {
	Symbol       string          `json:"symbol"`
	Underlying   string          `json:"underlying,omitempty"`
	SecType      string          `json:"secType"` // STK / OPT
	OptionType   OptionType      `json:"optionType,omitempty"`
	Strike       decimal.Decimal `json:"strike,omitempty"`
	Expiry       string          `json:"expiry,omitempty"`
	Quantity     int             `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avgCost"`
	MarketValue  decimal.Decimal `json:"marketValue"`
	UnrealizedPL decimal.Decimal `json:"unrealizedPnl"`
}

// IsOption 是否期权持仓
func (p Position) IsOption() bool {
	return p.SecType == "OPT" || p.OptionType != ""
}

// HasOpenOption 是否存在未平仓期权
func HasOpenOption(positions []Position) bool {
	for _, p := range positions {
		if p.IsOption() && p.Quantity != 0 {
			return true
		}
	}
	return false
}

// Account 账户状态
type Account struct {
	AccountID   string          `json:"accountId"`
	NetLiq      decimal.Decimal `json:"netLiquidation"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
	Cash        decimal.Decimal `json:"cash"`
	DayPL       decimal.Decimal `json:"dayPnl"`
	MaintMargin decimal.Decimal `json:"maintenanceMargin,omitempty"`
}

// EngineSignal 策略引擎输出
type EngineSignal struct {
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	Direction  string          `json:"direction"` // PUT / CALL / STRANGLE / NONE
	Strike     decimal.Decimal `json:"strike,omitempty"`
	Expiry     string          `json:"expiry,omitempty"`
	Delta      float64         `json:"delta,omitempty"`
	Premium    decimal.Decimal `json:"premium,omitempty"`
	Contracts  int             `json:"contracts,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	ReadyToRun bool            `json:"ready"`
}

// ExecutionResult 下单结果
type ExecutionResult struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	FilledQty int       `json:"filledQty"`
	AvgPrice  float64   `json:"avgPrice,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
