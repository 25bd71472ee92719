package dualbrain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk"
	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/extract"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// Proposer 分析模型
type Proposer struct {
	agent *agent.TierAgent
}

// NewProposer 创建 Proposer
func NewProposer(a *agent.TierAgent) *Proposer {
	return &Proposer{agent: a}
}

// proposalJSON 模型输出；数值字段可能是数字也可能是字符串
type proposalJSON struct {
	Action     string `json:"action"`
	Symbol     string `json:"symbol"`
	OptionType string `json:"optionType"`
	Strike     any    `json:"strike"`
	Expiry     string `json:"expiry"`
	Quantity   any    `json:"quantity"`
	Price      any    `json:"price"`
	Confidence any    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Propose 调用模型；网络错误与超时直接返回，输出无法解析时降级为 HOLD
func (p *Proposer) Propose(ctx context.Context, tc *TradingContext, now time.Time) (*models.Proposal, *adk.Completion, error) {
	prompt := tc.Render() + "\nDecide the next action. Output JSON only."
	c, err := adk.Generate(ctx, p.agent.LLM, adk.Request(proposerSystem, prompt), p.agent.Timeout())
	if err != nil {
		return nil, nil, fmt.Errorf("proposer: %w", err)
	}
	return parseProposal(c.Text, tc.Market.Symbol, now), c, nil
}

func parseProposal(text, defaultSymbol string, now time.Time) *models.Proposal {
	base := &models.Proposal{
		ID:        uuid.NewString(),
		Action:    models.ActionHold,
		Source:    "consensus",
		CreatedAt: now,
		TTL:       models.ProposalTTL,
	}

	var raw proposalJSON
	if _, err := extract.Decode(text, &raw); err != nil {
		log.Warn("proposer output unusable, defaulting to HOLD: %v", err)
		base.Reasoning = answerText(text)
		base.Note = "proposer output could not be parsed"
		return base
	}
	action, ok := models.ParseAction(raw.Action)
	if !ok {
		log.Warn("proposer returned unknown action %q, defaulting to HOLD", raw.Action)
		base.Reasoning = raw.Reasoning
		base.Note = fmt.Sprintf("unknown action %q", raw.Action)
		return base
	}

	symbol := strings.ToUpper(strings.TrimSpace(raw.Symbol))
	if symbol == "" {
		symbol = defaultSymbol
	}
	base.Action = action
	base.Reasoning = raw.Reasoning
	base.Confidence = clamp01(toFloat(raw.Confidence))
	if action != models.ActionHold {
		base.Terms = models.TradeTerms{
			Symbol:     symbol,
			OptionType: models.OptionType(strings.ToUpper(strings.TrimSpace(raw.OptionType))),
			Strike:     toDecimal(raw.Strike),
			Expiry:     raw.Expiry,
			Quantity:   int(toFloat(raw.Quantity)),
			Price:      toDecimal(raw.Price),
		}
	}
	return base
}

// Critic 校验模型
type Critic struct {
	agent *agent.TierAgent
}

// NewCritic 创建 Critic
func NewCritic(a *agent.TierAgent) *Critic {
	return &Critic{agent: a}
}

type critiqueJSON struct {
	Approved         bool     `json:"approved"`
	MandateCompliant bool     `json:"mandateCompliant"`
	RiskAssessment   string   `json:"riskAssessment"`
	Concerns         []string `json:"concerns"`
	Suggestions      []string `json:"suggestions"`
	Reasoning        string   `json:"reasoning"`
}

// Critique 评审提案；无法解析的评审一律视为不通过
func (c *Critic) Critique(ctx context.Context, tc *TradingContext, p *models.Proposal, proposalText string, timeout time.Duration) (*models.Critique, *adk.Completion, error) {
	if timeout <= 0 {
		timeout = c.agent.Timeout()
	}
	var b strings.Builder
	b.WriteString(tc.Render())
	b.WriteString("\n## Proposal\n")
	fmt.Fprintf(&b, "%s %s (confidence %.2f)\n", p.Action, p.Terms.String(), p.Confidence)
	if p.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", p.Reasoning)
	}
	if proposalText != "" {
		b.WriteString("\nFull proposer output:\n")
		b.WriteString(proposalText)
		b.WriteString("\n")
	}
	b.WriteString("\nReview the proposal. Output JSON only.")

	comp, err := adk.Generate(ctx, c.agent.LLM, adk.Request(criticSystem, b.String()), timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("critic: %w", err)
	}
	return parseCritique(comp.Text), comp, nil
}

func parseCritique(text string) *models.Critique {
	var raw critiqueJSON
	if _, err := extract.Decode(text, &raw); err != nil {
		log.Warn("critic output unusable, rejecting: %v", err)
		return &models.Critique{
			Approved:       false,
			RiskAssessment: models.RiskHigh,
			Concerns:       []string{"critic response could not be parsed: " + err.Error()},
			Suggestions:    []string{},
			Reasoning:      answerText(text),
		}
	}
	cr := &models.Critique{
		Approved:         raw.Approved,
		MandateCompliant: raw.MandateCompliant,
		RiskAssessment:   models.ParseRiskLevel(raw.RiskAssessment),
		Concerns:         raw.Concerns,
		Suggestions:      raw.Suggestions,
		Reasoning:        raw.Reasoning,
	}
	if cr.Concerns == nil {
		cr.Concerns = []string{}
	}
	if cr.Suggestions == nil {
		cr.Suggestions = []string{}
	}
	return cr
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(n, "$")), 64)
		return f
	}
	return 0
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimPrefix(n, "$")))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// answerText 去掉推理块后的正文
func answerText(text string) string {
	rest, _, _ := extract.RemoveReasoning(text)
	return strings.TrimSpace(extract.StripMarkers(rest))
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
