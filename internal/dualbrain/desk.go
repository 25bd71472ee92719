package dualbrain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

// ErrMultiLegUnsupported 只支持修改单腿提案
var ErrMultiLegUnsupported = apperr.New(apperr.KindInvalid, "proposals.modify", "only single-leg proposals can be modified (legIndex must be 0)")

// Modification 用户对提案条款的修改，nil 字段保持不变
type Modification struct {
	Strike   *decimal.Decimal `json:"strike,omitempty"`
	Expiry   *string          `json:"expiry,omitempty"`
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// 修改后提案的复核备注
const (
	NoteNotRevalidated = "not re-validated"
	NoteReviewSkipped  = "not re-validated (AI validation skipped)"
	NoteRevalidated    = "re-validated by critic"
)

// Reviewer 评审修改后的提案
type Reviewer func(ctx context.Context, p *models.Proposal) (*models.Critique, error)

// CriticReviewer 拉取最新交易上下文，只让 Critic 评审修改后的条款
func CriticReviewer(c *Critic, b broker.Broker, symbol string, mandate models.Mandate, timeout time.Duration) Reviewer {
	return func(ctx context.Context, p *models.Proposal) (*models.Critique, error) {
		tc, err := Gather(ctx, b, symbol, mandate)
		if err != nil {
			return nil, err
		}
		critique, _, err := c.Critique(ctx, tc, p, "", timeout)
		return critique, err
	}
}

// Desk 人工审批台：批准、拒绝与修改待审批提案
type Desk struct {
	proposals *Proposals
	router    *tools.Router
	reviewer  Reviewer
}

// NewDesk 创建审批台，并让 execute_trade 通过本存储查找提案
func NewDesk(proposals *Proposals, router *tools.Router, guard tools.TradeGuard) *Desk {
	router.Registry().SetProposalResolver(proposals.Get)
	if guard != nil {
		router.Registry().SetTradeGuard(guard)
	}
	return &Desk{proposals: proposals, router: router}
}

// Proposals 底层存储
func (d *Desk) Proposals() *Proposals { return d.proposals }

// SetReviewer 设置修改后的复核；未设置时修改结果只带 NoteNotRevalidated
func (d *Desk) SetReviewer(r Reviewer) { d.reviewer = r }

// Approve 人工批准并下单；成功后提案删除
func (d *Desk) Approve(ctx context.Context, id string) (*models.ExecutionResult, error) {
	if _, err := d.proposals.Get(ctx, id); err != nil {
		return nil, err
	}
	inv := d.router.Execute(ctx, tools.ExecuteTrade, map[string]any{"proposalId": id})
	if !inv.Result.Success {
		return nil, apperr.New(apperr.KindTool, "proposals.approve", inv.Result.Error)
	}
	if err := d.proposals.Delete(ctx, id); err != nil {
		log.Warn("delete executed proposal %s: %v", id, err)
	}
	res, _ := inv.Result.Data.(*models.ExecutionResult)
	log.Info("proposal %s executed: %s", id, inv.Summary)
	return res, nil
}

// Reject 人工拒绝
func (d *Desk) Reject(ctx context.Context, id string) error {
	if _, err := d.proposals.Get(ctx, id); err != nil {
		return err
	}
	log.Info("proposal %s rejected", id)
	return d.proposals.Delete(ctx, id)
}

// Modify 以新 id 替换提案，原提案删除；不做原地修改
func (d *Desk) Modify(ctx context.Context, id string, legIndex int, m Modification) (*models.Proposal, error) {
	if legIndex != 0 {
		return nil, ErrMultiLegUnsupported
	}
	old, err := d.proposals.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *old
	next.ID = uuid.NewString()
	next.CreatedAt = d.proposals.clock.Now()
	next.Source = "modify"
	if m.Strike != nil {
		next.Terms.Strike = *m.Strike
	}
	if m.Expiry != nil {
		next.Terms.Expiry = *m.Expiry
	}
	if m.Quantity != nil {
		if *m.Quantity <= 0 {
			return nil, apperr.New(apperr.KindInvalid, "proposals.modify", "quantity must be positive")
		}
		next.Terms.Quantity = *m.Quantity
	}
	if m.Price != nil {
		next.Terms.Price = *m.Price
	}

	note, err := d.review(ctx, &next)
	if err != nil {
		return nil, err
	}
	next.Note = fmt.Sprintf("modified from %s; %s", old.ID, note)

	stored, err := d.proposals.Add(ctx, &next)
	if err != nil {
		return nil, err
	}
	if err := d.proposals.Delete(ctx, old.ID); err != nil {
		log.Warn("delete replaced proposal %s: %v", old.ID, err)
	}
	return stored, nil
}

// review 复核修改后的条款；被拒绝时返回错误，原提案保留
func (d *Desk) review(ctx context.Context, p *models.Proposal) (string, error) {
	if d.reviewer == nil {
		return NoteNotRevalidated, nil
	}
	critique, err := d.reviewer(ctx, p)
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindTimeout) && ctx.Err() == nil:
		log.Warn("review of modified %s timed out, skipping", p.Terms.String())
		metrics.ConsensusOutcomes.WithLabelValues("skipped").Inc()
		return NoteReviewSkipped, nil
	default:
		return "", err
	}
	if !critique.Approved {
		metrics.ConsensusOutcomes.WithLabelValues("rejected").Inc()
		return "", apperr.New(apperr.KindInvalid, "proposals.modify", "critic rejected modified terms: "+RejectionReason(critique))
	}
	metrics.ConsensusOutcomes.WithLabelValues("approved").Inc()
	return NoteRevalidated, nil
}

// MandateGuard 下单前检查 mandate，需要账户当日盈亏
func MandateGuard(mandate models.Mandate, b broker.Broker) tools.TradeGuard {
	return func(ctx context.Context, p *models.Proposal) error {
		acct, err := b.GetAccount(ctx)
		if err != nil {
			return fmt.Errorf("mandate check: %w", err)
		}
		if v := mandate.Violations(p, acct.DayPL); len(v) > 0 {
			return apperr.New(apperr.KindInvalid, "mandate", strings.Join(v, "; "))
		}
		return nil
	}
}
