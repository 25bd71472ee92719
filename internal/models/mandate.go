package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Mandate 用户交易约束，生效后不可变
type Mandate struct {
	AllowedSymbols []string `json:"allowedSymbols" mapstructure:"allowed_symbols" yaml:"allowed_symbols"`
	Direction      string   `json:"direction" mapstructure:"direction" yaml:"direction"` // SELL_ONLY / BUY_ONLY / ANY
	MinDelta       float64  `json:"minDelta" mapstructure:"min_delta" yaml:"min_delta"`
	MaxDelta       float64  `json:"maxDelta" mapstructure:"max_delta" yaml:"max_delta"`
	MaxContracts   int      `json:"maxContracts" mapstructure:"max_contracts" yaml:"max_contracts"`
	DailyLossLimit float64  `json:"dailyLossLimit" mapstructure:"daily_loss_limit" yaml:"daily_loss_limit"`
	AllowOvernight bool     `json:"allowOvernight" mapstructure:"allow_overnight" yaml:"allow_overnight"`
}

// Describe 返回用于提示词的约束描述
func (m Mandate) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Allowed instruments: %s\n", strings.Join(m.AllowedSymbols, ", "))
	fmt.Fprintf(&b, "- Direction: %s\n", m.Direction)
	if m.MaxDelta > 0 {
		fmt.Fprintf(&b, "- Delta range: %.2f to %.2f\n", m.MinDelta, m.MaxDelta)
	}
	fmt.Fprintf(&b, "- Max contracts per trade: %d\n", m.MaxContracts)
	fmt.Fprintf(&b, "- Daily loss limit: $%.2f\n", m.DailyLossLimit)
	if m.AllowOvernight {
		b.WriteString("- Overnight positions: allowed\n")
	} else {
		b.WriteString("- Overnight positions: not allowed\n")
	}
	return b.String()
}

// Violations 返回提案违反约束的条目，空切片表示合规
func (m Mandate) Violations(p *Proposal, dayPL decimal.Decimal) []string {
	if p == nil || p.Action == ActionHold {
		return nil
	}
	var out []string
	if len(m.AllowedSymbols) > 0 && !containsFold(m.AllowedSymbols, p.Terms.Symbol) {
		out = append(out, fmt.Sprintf("symbol %s not allowed", p.Terms.Symbol))
	}
	switch strings.ToUpper(m.Direction) {
	case "SELL_ONLY":
		if p.Action == ActionBuy {
			out = append(out, "mandate is sell-only")
		}
	case "BUY_ONLY":
		if p.Action == ActionSell {
			out = append(out, "mandate is buy-only")
		}
	}
	if m.MaxContracts > 0 && p.Terms.Quantity > m.MaxContracts {
		out = append(out, fmt.Sprintf("quantity %d exceeds max %d", p.Terms.Quantity, m.MaxContracts))
	}
	if p.Terms.Quantity <= 0 && p.Action != ActionClose {
		out = append(out, "quantity must be positive")
	}
	if m.DailyLossLimit > 0 && dayPL.Neg().GreaterThanOrEqual(decimal.NewFromFloat(m.DailyLossLimit)) {
		out = append(out, "daily loss limit reached")
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
