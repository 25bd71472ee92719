package planner

import (
	"strings"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

// SynthesizeProposal 由引擎信号与持仓合成单腿提案，不调用模型
func SynthesizeProposal(signal *models.EngineSignal, positions []models.Position) (*models.Proposal, error) {
	if signal == nil {
		return nil, apperr.New(apperr.KindPlan, "synthesize", "engine signal unavailable")
	}
	if !signal.ReadyToRun || signal.Direction == "" || strings.EqualFold(signal.Direction, "NONE") {
		reason := signal.Reason
		if reason == "" {
			reason = "engine produced no trade"
		}
		return nil, apperr.New(apperr.KindPlan, "synthesize", reason)
	}
	if models.HasOpenOption(positions) {
		return nil, apperr.New(apperr.KindPlan, "synthesize", "an option position is already open")
	}

	opt := models.OptionType(strings.ToUpper(signal.Direction))
	if opt != models.OptionPut && opt != models.OptionCall {
		return nil, apperr.Newf(apperr.KindPlan, "synthesize", "multi-leg signal %s is not supported", signal.Direction)
	}
	qty := signal.Contracts
	if qty <= 0 {
		qty = 1
	}
	return &models.Proposal{
		Action: models.ActionSell,
		Terms: models.TradeTerms{
			Symbol:     signal.Symbol,
			OptionType: opt,
			Strike:     signal.Strike,
			Expiry:     signal.Expiry,
			Quantity:   qty,
			Price:      signal.Premium,
		},
		Confidence: 0.5,
		Reasoning:  tools.FormatSignal(*signal),
		Source:     "plan",
	}, nil
}
