package dualbrain

import (
	"context"
	"strings"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
)

// ValidationSkippedNote 校验超时后存入提案的备注
const ValidationSkippedNote = "AI validation skipped"

// 协商阶段，用于 status 事件
const (
	PhaseProposing  = "proposing"
	PhaseCritiquing = "critiquing"
	PhaseComplete   = "complete"
)

// Hooks 协商过程回调，均可为空
type Hooks struct {
	Phase    func(phase string)
	Proposal func(p *models.Proposal)
	Critique func(c *models.Critique)
}

func (h Hooks) phase(p string) {
	if h.Phase != nil {
		h.Phase(p)
	}
}

// Orchestrator 双脑协商
type Orchestrator struct {
	proposer  *Proposer
	critic    *Critic
	proposals *Proposals
	clock     clock.Clock
}

// NewOrchestrator 创建协商器
func NewOrchestrator(p *Proposer, c *Critic, proposals *Proposals, clk clock.Clock) *Orchestrator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Orchestrator{proposer: p, critic: c, proposals: proposals, clock: clk}
}

// Run 执行 Propose → Critique；只有评审通过的提案会进入待审批存储
func (o *Orchestrator) Run(ctx context.Context, tc *TradingContext, hooks Hooks) *models.ConsensusResult {
	start := o.clock.Now()
	res := &models.ConsensusResult{}
	defer func() {
		res.Duration = o.clock.Now().Sub(start)
		res.DurationMs = res.Duration.Milliseconds()
		metrics.ConsensusOutcomes.WithLabelValues(outcome(res)).Inc()
	}()

	hooks.phase(PhaseProposing)
	proposal, comp, err := o.proposer.Propose(ctx, tc, o.clock.Now())
	if err != nil {
		log.Error("proposer failed: %v", err)
		res.Error, res.Err = err.Error(), err
		return res
	}
	res.Action = proposal.Action

	if proposal.Action == models.ActionHold {
		res.Success = true
		res.Consensus = true
		res.Reasoning = proposal.Reasoning
		hooks.phase(PhaseComplete)
		return res
	}
	if hooks.Proposal != nil {
		hooks.Proposal(proposal)
	}
	res.Proposal = proposal

	hooks.phase(PhaseCritiquing)
	critique, _, err := o.critic.Critique(ctx, tc, proposal, comp.Text, 0)
	if err != nil {
		log.Error("critic failed, proposal %s not approved: %v", proposal.ID, err)
		res.Error, res.Err = err.Error(), err
		return res
	}
	if hooks.Critique != nil {
		hooks.Critique(critique)
	}
	res.Success = true
	res.Critique = critique
	res.Consensus = critique.Approved

	if !res.Consensus {
		res.RejectionReason = RejectionReason(critique)
		hooks.phase(PhaseComplete)
		return res
	}

	stored, err := o.proposals.Add(ctx, proposal)
	if err != nil {
		// 无法进入待审批存储的提案不能被执行
		log.Error("store proposal %s: %v", proposal.ID, err)
		res.Consensus = false
		res.Error, res.Err = err.Error(), err
		return res
	}
	res.Proposal = stored
	res.AwaitingHumanApproval = true
	hooks.phase(PhaseComplete)
	return res
}

// Validation 单独评审的结果
type Validation struct {
	Critique *models.Critique `json:"critique,omitempty"`
	Approved bool             `json:"approved"`
	Skipped  bool             `json:"skipped"`
	Stored   *models.Proposal `json:"stored,omitempty"`
}

// Validate 只做 Critic 评审，用于已经确定性合成的提案。
// 超时后跳过 AI 校验并带备注保存，交给人工决定；被拒绝的提案不保存。
func (o *Orchestrator) Validate(ctx context.Context, p *models.Proposal, tc *TradingContext, timeout time.Duration) (*Validation, error) {
	critique, _, err := o.critic.Critique(ctx, tc, p, "", timeout)
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindTimeout) && ctx.Err() == nil:
		log.Warn("validation of %s timed out after %s, skipping", p.Terms.String(), timeout)
		cp := *p
		cp.Note = ValidationSkippedNote
		stored, err := o.proposals.Add(ctx, &cp)
		if err != nil {
			return nil, err
		}
		metrics.ConsensusOutcomes.WithLabelValues("skipped").Inc()
		return &Validation{Skipped: true, Stored: stored}, nil
	default:
		return nil, err
	}

	v := &Validation{Critique: critique, Approved: critique.Approved}
	if critique.Approved {
		stored, err := o.proposals.Add(ctx, p)
		if err != nil {
			return nil, err
		}
		v.Stored = stored
		metrics.ConsensusOutcomes.WithLabelValues("approved").Inc()
	} else {
		metrics.ConsensusOutcomes.WithLabelValues("rejected").Inc()
	}
	return v, nil
}

// RejectionReason 评审未通过的原因
func RejectionReason(c *models.Critique) string {
	if len(c.Concerns) > 0 {
		return strings.Join(c.Concerns, "; ")
	}
	if c.Reasoning != "" {
		return c.Reasoning
	}
	return "critic did not approve"
}

func outcome(r *models.ConsensusResult) string {
	switch {
	case r.Error != "":
		return "error"
	case r.Action == models.ActionHold:
		return "hold"
	case r.AwaitingHumanApproval:
		return "approved"
	default:
		return "rejected"
	}
}
