// Package scheduler 按 cron 表达式驱动 tick。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/bearhedge/APEYOLO-sub001/internal/commandcenter"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

var log = logger.New("Scheduler")

// Ticker 被调度的决策循环
type Ticker interface {
	Tick(ctx context.Context) (*models.TickResult, error)
}

// Scheduler 定时任务
type Scheduler struct {
	cron   *cron.Cron
	ticker Ticker
	entry  cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建调度器；timezone 为空时使用 America/New_York
func New(t Ticker, schedule, timezone string) (*Scheduler, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ticker: t,
		ctx:    ctx,
		cancel: cancel,
	}
	s.entry, err = s.cron.AddFunc(schedule, s.run)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("tick scheduled, next run at %s", s.Next().Format(time.RFC3339))
}

// Stop 停止调度，取消进行中的 tick 并等待其返回
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Next 下一次执行时间，未启动时为零值
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) run() {
	res, err := s.ticker.Tick(s.ctx)
	switch {
	case errors.Is(err, commandcenter.ErrTickInProgress):
		log.Debug("scheduled tick skipped, previous still running")
	case err != nil:
		log.Error("scheduled tick failed: %v", err)
	default:
		log.Debug("scheduled tick decided %s", res.Decision)
	}
}
