package planner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

// Hooks 计划执行过程中的事件回调，调用是串行的
type Hooks struct {
	Plan func(p *Plan)
	Step func(s *Step)
	Data func(key string, value any)
}

// Outcome 计划执行结果
type Outcome struct {
	Plan     *Plan
	Summary  string
	Proposal *models.Proposal
	Duration time.Duration
}

// Executor 计划执行器
type Executor struct {
	router *tools.Router
}

// NewExecutor 创建执行器
func NewExecutor(r *tools.Router) *Executor {
	return &Executor{router: r}
}

// Run 逐阶段执行计划，阶段内的步骤并发；步骤失败不会中止计划
func (e *Executor) Run(ctx context.Context, plan *Plan, hooks Hooks) (out *Outcome, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error("plan %s panicked: %v\n%s", plan.Category, p, debug.Stack())
			out, err = nil, apperr.Newf(apperr.KindPlan, "planner.run", "plan %s failed: %v", plan.Category, p)
		}
	}()
	metrics.PlanRuns.WithLabelValues(string(plan.Category)).Inc()

	var mu sync.Mutex
	emit := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}
	if hooks.Plan != nil {
		hooks.Plan(plan)
	}

	for _, stage := range plan.Stages() {
		var g errgroup.Group
		for _, s := range stage {
			g.Go(func() error {
				emit(func() {
					s.Status = StepRunning
					if hooks.Step != nil {
						hooks.Step(s)
					}
				})
				output, summary, runErr := e.runStep(ctx, plan, s)
				emit(func() {
					if runErr != nil {
						s.Status, s.Error = StepError, runErr.Error()
						log.Warn("step %s failed: %v", s.ID, runErr)
					} else {
						s.Status, s.output, s.summary = StepComplete, output, summary
					}
					if hooks.Step != nil {
						hooks.Step(s)
					}
					if runErr == nil && hooks.Data != nil {
						hooks.Data(s.ID, output)
					}
				})
				return nil
			})
		}
		_ = g.Wait()
	}

	out = &Outcome{Plan: plan, Summary: Summarize(plan), Duration: time.Since(start)}
	if s := plan.Step(StepProposal); s != nil && s.Status == StepComplete {
		out.Proposal, _ = s.output.(*models.Proposal)
	}
	log.Info("plan %s finished in %s", plan.Category, out.Duration.Round(time.Millisecond))
	return out, nil
}

func (e *Executor) runStep(ctx context.Context, plan *Plan, s *Step) (any, string, error) {
	if s.Tool != "" {
		inv := e.router.Execute(ctx, s.Tool, s.Args)
		if !inv.Result.Success {
			return nil, "", fmt.Errorf("%s: %s", s.Tool, inv.Result.Error)
		}
		return inv.Result.Data, inv.Summary, nil
	}

	switch s.ID {
	case StepProposal:
		signal, _ := completedOutput(plan, StepEngine).(*models.EngineSignal)
		positions, _ := completedOutput(plan, StepPositions).([]models.Position)
		p, err := SynthesizeProposal(signal, positions)
		if err != nil {
			return nil, "", err
		}
		return p, ProposalLine(p), nil
	}
	return nil, "", apperr.Newf(apperr.KindPlan, "planner.step", "step %s has no tool", s.ID)
}

// completedOutput 读取前一阶段已完成步骤的输出；前一阶段已结束，无需加锁
func completedOutput(plan *Plan, id string) any {
	s := plan.Step(id)
	if s == nil || s.Status != StepComplete {
		return nil
	}
	return s.output
}
