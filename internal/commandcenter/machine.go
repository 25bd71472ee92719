// Package commandcenter 实现按固定节奏运行的自主决策循环（tick）。
package commandcenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/extract"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
)

var log = logger.New("CommandCenter")

// ErrTickInProgress 上一次 tick 尚未结束，本次被跳过
var ErrTickInProgress = errors.New("tick already in progress")

// KnowledgeSource 历史经验
type KnowledgeSource interface {
	Lessons(ctx context.Context, vixBucket, timeBucket string, limit int) ([]models.Lesson, error)
}

// Audit tick 审计日志
type Audit interface {
	AppendTick(ctx context.Context, rec *models.TickRecord) error
	RecentTicks(ctx context.Context, limit int) ([]models.TickRecord, error)
}

// Options 构造参数
type Options struct {
	Broker    broker.Broker
	Executor  *agent.TierAgent
	Thinker   *agent.TierAgent
	Knowledge KnowledgeSource
	Audit     Audit
	Clock     clock.Clock
	Symbol    string
	Lessons   int
	Location  *time.Location
}

// Machine tick 状态机
type Machine struct {
	opts Options

	run   sync.Mutex
	mu    sync.RWMutex
	state models.Decision
}

// New 创建状态机
func New(opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Symbol == "" {
		opts.Symbol = "SPY"
	}
	if opts.Lessons <= 0 {
		opts.Lessons = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Machine{opts: opts, state: models.DecisionWait}
}

// State 最近一次进入的状态
func (m *Machine) State() models.Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) setState(d models.Decision) {
	m.mu.Lock()
	m.state = d
	m.mu.Unlock()
}

// History 最近的 tick 记录
func (m *Machine) History(ctx context.Context, limit int) ([]models.TickRecord, error) {
	if m.opts.Audit == nil {
		return nil, nil
	}
	return m.opts.Audit.RecentTicks(ctx, limit)
}

// outcome 一次 tick 的内部结果
type outcome struct {
	decision  models.Decision
	reasoning string
	tier      models.Tier
	model     string
	proposal  *models.Proposal
	err       error
}

// Tick 执行一次决策循环。每次调用恰好写入一条审计记录，写入失败只记日志。
// 已有 tick 在运行时记一条 ERROR 记录并返回 ErrTickInProgress，状态不变。
func (m *Machine) Tick(ctx context.Context) (*models.TickResult, error) {
	if !m.run.TryLock() {
		log.Warn("tick skipped: previous tick still running")
		m.persist(ctx, &models.TickRecord{
			Timestamp: m.opts.Clock.Now(),
			Decision:  models.DecisionError,
			Reasoning: "tick skipped",
			Error:     ErrTickInProgress.Error(),
		})
		metrics.TickDecisions.WithLabelValues(string(models.DecisionError)).Inc()
		return nil, ErrTickInProgress
	}
	defer m.run.Unlock()

	start := m.opts.Clock.Now()
	wall := time.Now()
	o := m.evaluate(ctx)
	elapsed := time.Since(wall)
	m.setState(o.decision)

	rec := &models.TickRecord{
		Timestamp: start,
		Decision:  o.decision,
		Reasoning: o.reasoning,
		ModelTier: o.tier,
		ModelUsed: o.model,
		Duration:  elapsed,
	}
	result := &models.TickResult{
		Decision:   o.decision,
		Reasoning:  o.reasoning,
		Proposal:   o.proposal,
		ModelUsed:  o.model,
		DurationMs: elapsed.Milliseconds(),
	}
	if o.proposal != nil {
		rec.ProposalID = o.proposal.ID
	}
	if o.err != nil {
		rec.Error = o.err.Error()
		result.Error = o.err.Error()
	}

	m.persist(ctx, rec)

	metrics.TickDecisions.WithLabelValues(string(o.decision)).Inc()
	metrics.TickDuration.Observe(elapsed.Seconds())
	log.Info("tick %s in %s: %s", o.decision, elapsed.Round(time.Millisecond), o.reasoning)
	return result, nil
}

// persist 写审计记录；使用独立 ctx，调用方取消也要留下记录
func (m *Machine) persist(ctx context.Context, rec *models.TickRecord) {
	if m.opts.Audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.opts.Audit.AppendTick(actx, rec); err != nil {
		log.Error("persist tick record: %v", err)
	}
}

func (m *Machine) evaluate(ctx context.Context) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("tick panicked: %v", p)
			o = outcome{decision: models.DecisionError, reasoning: "tick failed unexpectedly", err: fmt.Errorf("panic: %v", p)}
		}
	}()

	snap, positions, err := m.marketContext(ctx)
	if err != nil {
		return outcome{decision: models.DecisionError, reasoning: "market context unavailable", err: err}
	}
	if !snap.MarketOpen {
		return outcome{decision: models.DecisionWait, reasoning: "Market closed"}
	}
	if models.HasOpenOption(positions) {
		return m.manage(positions)
	}

	o = m.quickCheck(ctx, snap)
	if o.decision != "" {
		return o
	}

	m.setState(models.DecisionAnalyze)
	return m.analyze(ctx, snap)
}

// marketContext 并发拉取行情快照与持仓
func (m *Machine) marketContext(ctx context.Context) (models.MarketSnapshot, []models.Position, error) {
	var snap models.MarketSnapshot
	var positions []models.Position
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap, err = broker.Snapshot(gctx, m.opts.Broker, m.opts.Symbol)
		return err
	})
	g.Go(func() (err error) {
		positions, err = m.opts.Broker.GetPositions(gctx)
		if err != nil {
			return fmt.Errorf("positions: %w", err)
		}
		return nil
	})
	err := g.Wait()
	return snap, positions, err
}

// manage 持仓管理；目前只做监控
func (m *Machine) manage(positions []models.Position) outcome {
	var open []string
	for _, p := range positions {
		if p.IsOption() && p.Quantity != 0 {
			open = append(open, fmt.Sprintf("%d %s", p.Quantity, p.Symbol))
		}
	}
	return outcome{
		decision:  models.DecisionManage,
		reasoning: "Monitoring open position: " + strings.Join(open, ", "),
	}
}

type quickCheckJSON struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason"`
}

// quickCheck 快速层判断；返回空 decision 表示继续
func (m *Machine) quickCheck(ctx context.Context, snap models.MarketSnapshot) outcome {
	a := m.opts.Executor
	base := outcome{tier: models.TierExecutor, model: a.Name()}

	prompt := fmt.Sprintf("%s\nVIX regime: %s\nTime of day: %s\nShould we run a deeper analysis? Output JSON only.",
		tools.FormatMarket(snap), models.VIXBucket(snap.VIX), m.timeBucket())
	c, err := adk.Generate(ctx, a.LLM, adk.Request(quickCheckSystem, prompt), a.Timeout())
	if err != nil {
		base.decision, base.reasoning, base.err = models.DecisionError, "quick check failed", err
		return base
	}

	var qc quickCheckJSON
	if _, err := extract.Decode(c.Text, &qc); err != nil {
		base.decision = models.DecisionHold
		base.reasoning = "quick check output unusable: " + err.Error()
		return base
	}
	if !qc.Proceed {
		base.decision, base.reasoning = models.DecisionHold, nonEmpty(qc.Reason, "quick check declined")
		return base
	}
	return outcome{}
}

type analysisJSON struct {
	Trade      bool    `json:"trade"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
	Reasoning  string  `json:"reasoning"`
}

// analyze 深度层判断，结合历史经验
func (m *Machine) analyze(ctx context.Context, snap models.MarketSnapshot) outcome {
	a := m.opts.Thinker
	base := outcome{tier: models.TierThinker, model: a.Name()}

	var b strings.Builder
	b.WriteString(tools.FormatMarket(snap))
	b.WriteString("\n\n## Lessons from similar conditions\n")
	lessons := m.lessons(ctx, snap)
	if len(lessons) == 0 {
		b.WriteString("none recorded\n")
	}
	for _, l := range lessons {
		fmt.Fprintf(&b, "- [%s/%s] %s", l.VIXBucket, l.TimeBucket, l.Summary)
		if l.Outcome != "" {
			fmt.Fprintf(&b, " (outcome: %s)", l.Outcome)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nShould we trade now? Output JSON only.")

	c, err := adk.Generate(ctx, a.LLM, adk.Request(analyzeSystem, b.String()), a.Timeout())
	if err != nil {
		base.decision, base.reasoning, base.err = models.DecisionError, "analysis failed", err
		return base
	}

	var an analysisJSON
	reasoning, err := extract.Decode(c.Text, &an)
	if err != nil {
		base.decision = models.DecisionHold
		base.reasoning = "analysis output unusable: " + err.Error()
		return base
	}
	if !an.Trade {
		base.decision, base.reasoning = models.DecisionHold, nonEmpty(an.Reasoning, "analysis found no edge")
		return base
	}

	why := nonEmpty(an.Reasoning, reasoning)
	base.decision = models.DecisionPropose
	base.reasoning = why
	base.proposal = &models.Proposal{
		ID:         uuid.NewString(),
		Terms:      models.TradeTerms{Symbol: m.opts.Symbol},
		Confidence: an.Confidence,
		Reasoning:  strings.TrimSpace(an.Strategy + " " + why),
		Source:     "tick",
		Note:       "stub: trade terms are not synthesized by the autonomous loop",
		CreatedAt:  m.opts.Clock.Now(),
		TTL:        models.ProposalTTL,
	}
	return base
}

func (m *Machine) lessons(ctx context.Context, snap models.MarketSnapshot) []models.Lesson {
	if m.opts.Knowledge == nil {
		return nil
	}
	ls, err := m.opts.Knowledge.Lessons(ctx, models.VIXBucket(snap.VIX), m.timeBucket(), m.opts.Lessons)
	if err != nil {
		log.Warn("load lessons: %v", err)
		return nil
	}
	return ls
}

func (m *Machine) timeBucket() string {
	return models.TimeBucket(m.opts.Clock.Now().In(m.opts.Location))
}

func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
