// Package dualbrain 实现 Proposer/Critic 两阶段协商，以及待人工审批提案的存储与执行。
package dualbrain

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

var log = logger.New("DualBrain")

// TradingContext 两个模型共享的交易上下文
type TradingContext struct {
	Market      models.MarketSnapshot `json:"market"`
	Positions   []models.Position     `json:"positions"`
	Account     *models.Account       `json:"account,omitempty"`
	Mandate     models.Mandate        `json:"mandate"`
	UserRequest string                `json:"userRequest,omitempty"`
}

// Gather 并发拉取行情、持仓与账户
func Gather(ctx context.Context, b broker.Broker, symbol string, mandate models.Mandate) (*TradingContext, error) {
	tc := &TradingContext{Mandate: mandate}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tc.Market, err = broker.Snapshot(gctx, b, symbol)
		return err
	})
	g.Go(func() (err error) {
		tc.Positions, err = b.GetPositions(gctx)
		if err != nil {
			return fmt.Errorf("positions: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		tc.Account, err = b.GetAccount(gctx)
		if err != nil {
			return fmt.Errorf("account: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tc, nil
}

// Render 渲染为提示词文本
func (tc *TradingContext) Render() string {
	var b strings.Builder
	b.WriteString("## Market\n")
	b.WriteString(tools.FormatMarket(tc.Market))
	if !tc.Market.Timestamp.IsZero() {
		fmt.Fprintf(&b, " (as of %s)", tc.Market.Timestamp.Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\n\n## Positions\n")
	b.WriteString(tools.FormatPositions(tc.Positions))
	b.WriteString("\n\n## Account\n")
	if tc.Account != nil {
		b.WriteString(tools.FormatAccount(*tc.Account))
	} else {
		b.WriteString("unknown")
	}
	b.WriteString("\n\n## Mandate\n")
	b.WriteString(tc.Mandate.Describe())
	if tc.UserRequest != "" {
		b.WriteString("\n## User request\n")
		b.WriteString(tc.UserRequest)
		b.WriteString("\n")
	}
	return b.String()
}
