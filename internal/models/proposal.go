package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProposalTTL 待审批提案的存活时间
const ProposalTTL = time.Hour

// Action 交易动作
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

// ParseAction 解析动作，未知值返回 false
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionClose:
		return a, true
	}
	return ActionHold, false
}

// OptionType 期权类型
type OptionType string

const (
	OptionPut  OptionType = "PUT"
	OptionCall OptionType = "CALL"
)

// TradeTerms 交易条款（单腿）
type TradeTerms struct {
	Symbol     string          `json:"symbol"`
	OptionType OptionType      `json:"optionType,omitempty"`
	Strike     decimal.Decimal `json:"strike"`
	Expiry     string          `json:"expiry,omitempty"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// Notional 名义金额（期权按 100 倍乘数）
func (t TradeTerms) Notional() decimal.Decimal {
	mult := decimal.NewFromInt(1)
	if t.OptionType != "" {
		mult = decimal.NewFromInt(100)
	}
	return t.Price.Mul(decimal.NewFromInt(int64(t.Quantity))).Mul(mult)
}

// String 返回条款摘要
func (t TradeTerms) String() string {
	if t.OptionType == "" {
		return fmt.Sprintf("%d %s @ %s", t.Quantity, t.Symbol, t.Price.StringFixed(2))
	}
	return fmt.Sprintf("%d %s %s %s %s @ %s", t.Quantity, t.Symbol, t.Expiry,
		t.Strike.String(), t.OptionType, t.Price.StringFixed(2))
}

// Proposal 交易提案，创建后不可修改
type Proposal struct {
	ID         string        `json:"id"`
	Action     Action        `json:"action"`
	Terms      TradeTerms    `json:"terms"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Source     string        `json:"source"` // consensus / plan / tick / modify
	Note       string        `json:"note,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt 过期时间
func (p *Proposal) ExpiresAt() time.Time {
	return p.CreatedAt.Add(p.TTL)
}

// Expired 判断在 now 时刻是否已过期
func (p *Proposal) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ParseRiskLevel 解析风险等级，未知值按 HIGH 处理
func ParseRiskLevel(s string) RiskLevel {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r
	}
	return RiskHigh
}

// Critique 校验模型对提案的评审
type Critique struct {
	Approved         bool      `json:"approved"`
	MandateCompliant bool      `json:"mandateCompliant"`
	RiskAssessment   RiskLevel `json:"riskAssessment"`
	Concerns         []string  `json:"concerns"`
	Suggestions      []string  `json:"suggestions"`
	Reasoning        string    `json:"reasoning"`
}

// ConsensusResult 双脑协商结果
type ConsensusResult struct {
	Success               bool          `json:"success"`
	Action                Action        `json:"action,omitempty"`
	Reasoning             string        `json:"reasoning,omitempty"` // HOLD 时的说明
	Proposal              *Proposal     `json:"proposal,omitempty"`
	Critique              *Critique     `json:"critique,omitempty"`
	Consensus             bool          `json:"consensus"`
	AwaitingHumanApproval bool          `json:"awaitingHumanApproval"`
	RejectionReason       string        `json:"rejectionReason,omitempty"`
	Duration              time.Duration `json:"-"`
	DurationMs            int64         `json:"durationMs"`
	Error                 string        `json:"error,omitempty"`
	Err                   error         `json:"-"`
}
