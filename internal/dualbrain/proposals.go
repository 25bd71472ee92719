package dualbrain

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
)

const proposalKeyPrefix = "proposal:"

// Proposals 待人工审批的提案，读取时检查过期
type Proposals struct {
	items *store.Typed[models.Proposal]
	clock clock.Clock
}

// NewProposals 创建提案存储
func NewProposals(kv store.KV, c clock.Clock) *Proposals {
	if c == nil {
		c = clock.System{}
	}
	return &Proposals{
		items: store.NewTyped[models.Proposal](kv, proposalKeyPrefix, models.ProposalTTL),
		clock: c,
	}
}

// Add 保存提案，补齐 id、创建时间与 TTL，返回保存的副本
func (s *Proposals) Add(ctx context.Context, p *models.Proposal) (*models.Proposal, error) {
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.clock.Now()
	}
	cp.TTL = models.ProposalTTL
	if err := s.items.Put(ctx, cp.ID, cp); err != nil {
		return nil, err
	}
	s.observe(ctx)
	return &cp, nil
}

// Get 读取提案；不存在或已过期返回 KindNotFound
func (s *Proposals) Get(ctx context.Context, id string) (*models.Proposal, error) {
	p, ok, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok && p.Expired(s.clock.Now()) {
		_ = s.items.Delete(ctx, id)
		ok = false
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "proposals", "proposal %s not found or expired", id)
	}
	return &p, nil
}

// Delete 删除提案
func (s *Proposals) Delete(ctx context.Context, id string) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}
	s.observe(ctx)
	return nil
}

// List 未过期提案，按创建时间排序
func (s *Proposals) List(ctx context.Context) ([]*models.Proposal, error) {
	all, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]*models.Proposal, 0, len(all))
	for i := range all {
		if !all[i].Expired(now) {
			out = append(out, &all[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Proposals) observe(ctx context.Context) {
	if list, err := s.List(ctx); err == nil {
		metrics.PendingProposals.Set(float64(len(list)))
	}
}
