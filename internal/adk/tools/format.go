package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

var printer = message.NewPrinter(language.English)

// Format 把工具结果转成一行展示文本，只读不改 Data
func Format(tool string, res Result) string {
	if !res.Success {
		return fmt.Sprintf("%s failed: %s", tool, res.Error)
	}
	switch d := res.Data.(type) {
	case models.MarketSnapshot:
		return FormatMarket(d)
	case *models.MarketSnapshot:
		return FormatMarket(*d)
	case []models.Position:
		return FormatPositions(d)
	case *models.Account:
		return FormatAccount(*d)
	case models.Account:
		return FormatAccount(d)
	case *models.EngineSignal:
		return FormatSignal(*d)
	case *models.ExecutionResult:
		return fmt.Sprintf("Order %s %s (filled %d)", d.OrderID, d.Status, d.FilledQty)
	}
	data, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Sprintf("%s ok", tool)
	}
	s := string(data)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// FormatMarket 行情摘要，如 `SPY: $601.23 | VIX: 14.80 | Market: OPEN`
func FormatMarket(m models.MarketSnapshot) string {
	symbol := m.Symbol
	if symbol == "" {
		symbol = "SPY"
	}
	state := "CLOSED"
	if m.MarketOpen {
		state = "OPEN"
	}
	return fmt.Sprintf("%s: $%.2f | VIX: %.2f | Market: %s", symbol, m.SPY, m.VIX, state)
}

// FormatPositions 持仓摘要
func FormatPositions(ps []models.Position) string {
	if len(ps) == 0 {
		return "Positions: none"
	}
	items := make([]string, 0, len(ps))
	for _, p := range ps {
		items = append(items, fmt.Sprintf("%d %s (P&L %s)", p.Quantity, p.Symbol, money(p.UnrealizedPL)))
	}
	return fmt.Sprintf("Positions (%d): %s", len(ps), strings.Join(items, "; "))
}

// FormatAccount 账户摘要
func FormatAccount(a models.Account) string {
	return fmt.Sprintf("Net Liq: %s | Buying Power: %s | Cash: %s | Day P&L: %s",
		money(a.NetLiq), money(a.BuyingPower), money(a.Cash), money(a.DayPL))
}

// FormatSignal 策略信号摘要
func FormatSignal(s models.EngineSignal) string {
	if !s.ReadyToRun || s.Direction == "" || s.Direction == "NONE" {
		if s.Reason != "" {
			return "Engine: no trade (" + s.Reason + ")"
		}
		return "Engine: no trade"
	}
	return fmt.Sprintf("Engine: %s %s %s %s delta %.2f premium %s x%d",
		s.Strategy, s.Direction, s.Strike.String(), s.Expiry, s.Delta, money(s.Premium), s.Contracts)
}

func money(d decimal.Decimal) string {
	f := d.InexactFloat64()
	if f < 0 {
		return printer.Sprintf("-$%.2f", -f)
	}
	return printer.Sprintf("$%.2f", f)
}
