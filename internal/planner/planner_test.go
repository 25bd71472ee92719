package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker/brokertest"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
)

func newClassifier() (*Classifier, *clock.Manual) {
	clk := clock.NewManual(time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC))
	return NewClassifier(store.NewMemory(clk, 0), clk, nil), clk
}

func TestMatchRuleOrder(t *testing.T) {
	cases := map[string]Category{
		"what's the price of SPY right now":       CategoryPrice,
		"how are market conditions today":         CategoryMarket,
		"what is spy trading at in this market":   CategoryPrice,
		"show me my positions":                    CategoryPosition,
		"what's my buying power":                  CategoryPosition,
		"should I sell a put on SPY":              CategoryTrade,
		"find me a trade":                         CategoryTrade,
		"explain how theta decay affects my risk": CategoryComplex,
		"spy?":                                    CategoryPrice,
		"is the market open":                      CategoryMarket,
	}
	for text, want := range cases {
		got, _ := Match(DefaultRules, text)
		assert.Equal(t, want, got, text)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c, _ := newClassifier()
	for i := 0; i < 5; i++ {
		assert.Equal(t, CategoryMarket, c.Classify(context.Background(), "", "how volatile is the market today?"))
	}
}

func TestFollowUpResolution(t *testing.T) {
	ctx := context.Background()
	c, clk := newClassifier()

	require.NoError(t, c.Remember(ctx, "s1", CategoryMarket))
	clk.Advance(4 * time.Minute)
	assert.Equal(t, CategoryMarket, c.Classify(ctx, "s1", "and now?"))

	require.NoError(t, c.Remember(ctx, "s1", CategoryMarket))
	clk.Advance(FollowUpWindow + time.Second)
	assert.Equal(t, CategoryPrice, c.Classify(ctx, "s1", "and now?"))

	assert.Equal(t, CategoryPrice, c.Classify(ctx, "unknown-session", "again?"))
}

func TestFollowUpHeuristic(t *testing.T) {
	assert.True(t, IsFollowUp(DefaultRules, "and now?"))
	assert.True(t, IsFollowUp(DefaultRules, "What about now"))
	assert.True(t, IsFollowUp(DefaultRules, "hmm?"), "short utterance with no rule hit")
	assert.False(t, IsFollowUp(DefaultRules, "vix?"), "short but matches MARKET")
	assert.False(t, IsFollowUp(DefaultRules, "tell me something interesting"))
}

func TestClassifyRecordsSession(t *testing.T) {
	ctx := context.Background()
	c, _ := newClassifier()
	assert.Equal(t, CategoryPosition, c.Classify(ctx, "s2", "what are my positions"))
	assert.Equal(t, CategoryPosition, c.Classify(ctx, "s2", "and now?"))
}

func TestSessionContextIsBounded(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC))
	kv := store.NewMemory(clk, 0)
	require.NoError(t, kv.Set(ctx, "proposal:keep", []byte(`{}`), time.Hour))
	c := NewClassifier(kv, clk, nil)

	for i := 0; i < SessionCapacity+50; i++ {
		c.Classify(ctx, fmt.Sprintf("s%03d", i), "what are my positions")
		clk.Advance(time.Millisecond)
	}

	keys, err := kv.Keys(ctx, "session:")
	require.NoError(t, err)
	assert.Len(t, keys, SessionCapacity)
	assert.NotContains(t, keys, "session:s000")
	assert.NotContains(t, keys, "session:s049")
	assert.Contains(t, keys, "session:s050")
	assert.Contains(t, keys, "session:s149")

	_, ok, err := kv.Get(ctx, "proposal:keep")
	require.NoError(t, err)
	assert.True(t, ok)

	// 被淘汰的会话不再有追问上下文
	assert.Equal(t, CategoryPosition, c.Classify(ctx, "s149", "and now?"))
	assert.Equal(t, CategoryPrice, c.Classify(ctx, "s000", "and now?"))
}

func TestExpand(t *testing.T) {
	p, ok := Expand(CategoryTrade, "SPY")
	require.True(t, ok)
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
		assert.Equal(t, StepPending, s.Status)
	}
	assert.Equal(t, []string{StepMarket, StepPositions, StepEngine, StepProposal}, ids)
	assert.Len(t, p.Stages(), 3)
	assert.Len(t, p.Stages()[0], 2)

	p, ok = Expand(CategoryPosition, "SPY")
	require.True(t, ok)
	assert.Len(t, p.Stages(), 1)

	_, ok = Expand(CategoryComplex, "SPY")
	assert.False(t, ok)
}

type recorder struct {
	mu     sync.Mutex
	events []string
	data   map[string]any
}

func (r *recorder) hooks() Hooks {
	r.data = map[string]any{}
	return Hooks{
		Plan: func(p *Plan) { r.add("plan:" + string(p.Category)) },
		Step: func(s *Step) { r.add(s.ID + ":" + string(s.Status)) },
		Data: func(k string, v any) { r.data[k] = v },
	}
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestFollowUpMarketScenario(t *testing.T) {
	ctx := context.Background()
	c, _ := newClassifier()
	require.NoError(t, c.Remember(ctx, "s1", CategoryMarket))

	b := brokertest.New()
	exec := NewExecutor(tools.NewRouter(tools.NewRegistry(b, "SPY", time.Second)))

	cat := c.Classify(ctx, "s1", "and now?")
	require.Equal(t, CategoryMarket, cat)
	plan, ok := Expand(cat, "SPY")
	require.True(t, ok)

	rec := &recorder{}
	out, err := exec.Run(ctx, plan, rec.hooks())
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "SPY: $601.23")
	assert.Contains(t, out.Summary, "VIX: 14.80")
	assert.Contains(t, out.Summary, "Market: OPEN")
	assert.Equal(t, []string{"plan:MARKET", "market:running", "market:complete"}, rec.events)
	assert.Contains(t, rec.data, StepMarket)
}

func TestStepErrorDoesNotAbort(t *testing.T) {
	b := brokertest.New()
	b.PositionsErr = apperr.New(apperr.KindOffline, "bridge", "down")
	exec := NewExecutor(tools.NewRouter(tools.NewRegistry(b, "SPY", time.Second)))

	plan, _ := Expand(CategoryPosition, "SPY")
	out, err := exec.Run(context.Background(), plan, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, StepError, plan.Step(StepPositions).Status)
	assert.Equal(t, StepComplete, plan.Step(StepAccount).Status)
	assert.NotContains(t, out.Summary, "Positions")
	assert.Contains(t, out.Summary, "Net Liq")
}

func TestTradePlanSynthesizesProposal(t *testing.T) {
	b := brokertest.New()
	exec := NewExecutor(tools.NewRouter(tools.NewRegistry(b, "SPY", time.Second)))

	plan, _ := Expand(CategoryTrade, "SPY")
	out, err := exec.Run(context.Background(), plan, Hooks{})
	require.NoError(t, err)
	require.NotNil(t, out.Proposal)
	assert.Equal(t, models.ActionSell, out.Proposal.Action)
	assert.Equal(t, models.OptionPut, out.Proposal.Terms.OptionType)
	assert.Equal(t, "plan", out.Proposal.Source)
	assert.Contains(t, out.Summary, "Proposal: SELL 1 SPY 2025-01-15 595 PUT @ 0.85")
	assert.Equal(t, 1, b.Calls("engine"))
}

func TestTradePlanWithoutSignal(t *testing.T) {
	b := brokertest.New()
	b.Signal = models.EngineSignal{Reason: "VIX below threshold"}
	exec := NewExecutor(tools.NewRouter(tools.NewRegistry(b, "SPY", time.Second)))

	plan, _ := Expand(CategoryTrade, "SPY")
	out, err := exec.Run(context.Background(), plan, Hooks{})
	require.NoError(t, err)
	assert.Nil(t, out.Proposal)
	assert.Equal(t, "synthesize: VIX below threshold", plan.Step(StepProposal).Error)
	assert.Contains(t, out.Summary, "Engine: no trade (VIX below threshold)")
}

func TestPanicSurfacesAsPlanError(t *testing.T) {
	reg := tools.NewRegistry(brokertest.New(), "SPY", time.Second)
	exec := NewExecutor(tools.NewRouter(reg))
	plan := &Plan{Category: CategoryMarket, Steps: []*Step{{ID: "market", Tool: tools.GetMarketData}}}

	_, err := exec.Run(context.Background(), plan, Hooks{Plan: func(*Plan) { panic("hook exploded") }})
	assert.Equal(t, apperr.KindPlan, apperr.KindOf(err))
}
