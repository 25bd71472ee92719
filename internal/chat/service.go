// Package chat 编排一次对话请求：能确定性回答的走计划，其余交给模型；operate 走双脑协商。
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/dualbrain"
	"github.com/bearhedge/APEYOLO-sub001/internal/extract"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
	"github.com/bearhedge/APEYOLO-sub001/internal/planner"
	"github.com/bearhedge/APEYOLO-sub001/internal/sse"
)

var log = logger.New("Chat")

// 状态事件中的阶段
const (
	PhaseClassifying = "classifying"
	PhasePlanning    = "planning"
	PhaseThinking    = "thinking"
	PhaseGathering   = "gathering"
	PhaseValidating  = "validating"
)

// DefaultValidationTimeout 计划路径中提案校验的上限
const DefaultValidationTimeout = 20 * time.Second

// Turn 历史消息
type Turn struct {
	Role    string `json:"role"` // user / assistant
	Content string `json:"content"`
}

// Request 对话请求
type Request struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	History   []Turn `json:"history,omitempty"`
}

// OperateRequest 协商请求
type OperateRequest struct {
	Message string `json:"message,omitempty"`
}

// Options 构造参数
type Options struct {
	Classifier        *planner.Classifier
	Executor          *planner.Executor
	Router            *tools.Router
	Model             *agent.TierAgent
	Orchestrator      *dualbrain.Orchestrator
	Broker            broker.Broker
	Mandate           models.Mandate
	ValidationTimeout time.Duration
}

// Service 对话编排
type Service struct {
	opts Options
}

// NewService 创建服务
func NewService(opts Options) *Service {
	if opts.ValidationTimeout <= 0 {
		opts.ValidationTimeout = DefaultValidationTimeout
	}
	return &Service{opts: opts}
}

func (s *Service) symbol() string { return s.opts.Router.Registry().Symbol() }

// Chat 处理一次对话，事件写入 sink
func (s *Service) Chat(ctx context.Context, req Request, sink sse.Sink) error {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return apperr.New(apperr.KindInvalid, "chat", "message is required")
	}

	_ = sink.Send(sse.EventStatus, sse.Status{Phase: PhaseClassifying})
	cat := s.opts.Classifier.Classify(ctx, req.SessionID, msg)
	log.Info("session %q classified as %s", req.SessionID, cat)

	if plan, ok := planner.Expand(cat, s.symbol()); ok {
		err := s.runPlan(ctx, plan, msg, sink)
		if err == nil || !apperr.Is(err, apperr.KindPlan) {
			return err
		}
		log.Warn("plan %s failed, falling back to model: %v", cat, err)
	}
	return s.runModel(ctx, req, sink)
}

// runPlan 确定性路径，不调用模型（TRADE 提案的校验除外）
func (s *Service) runPlan(ctx context.Context, plan *planner.Plan, msg string, sink sse.Sink) error {
	_ = sink.Send(sse.EventStatus, sse.Status{Phase: PhasePlanning})
	out, err := s.opts.Executor.Run(ctx, plan, planner.Hooks{
		Plan: func(p *planner.Plan) { _ = sink.Send(sse.EventPlan, planEvent(p)) },
		Step: func(st *planner.Step) {
			_ = sink.Send(sse.EventStep, sse.Step{StepID: st.ID, Status: string(st.Status), Error: st.Error})
		},
		Data: func(key string, value any) {
			_ = sink.Send(sse.EventData, sse.Data{Key: key, Value: value})
			if snap, ok := value.(models.MarketSnapshot); ok {
				_ = sink.Send(sse.EventContext, sse.ContextFrom(snap))
			}
		},
	})
	if err != nil {
		return err
	}

	_ = sink.Send(sse.EventResult, sse.Result{Content: out.Summary, IsComplete: out.Proposal == nil})
	if out.Proposal == nil {
		return nil
	}
	return s.validate(ctx, plan, out.Proposal, msg, sink)
}

// validate 计划合成的提案交给 Critic；超时跳过校验，仍需人工审批
func (s *Service) validate(ctx context.Context, plan *planner.Plan, p *models.Proposal, msg string, sink sse.Sink) error {
	_ = sink.Send(sse.EventStatus, sse.Status{Phase: PhaseValidating})
	tc := contextFromPlan(plan, s.opts.Mandate, msg)

	v, err := s.opts.Orchestrator.Validate(ctx, p, tc, s.opts.ValidationTimeout)
	if err != nil {
		return fmt.Errorf("validate proposal: %w", err)
	}
	if v.Critique != nil {
		_ = sink.Send(sse.EventCritique, v.Critique)
	}

	var content string
	switch {
	case v.Stored != nil:
		_ = sink.Send(sse.EventProposal, v.Stored)
		content = fmt.Sprintf("Proposal %s awaiting approval", v.Stored.ID)
		if v.Skipped {
			content += " (" + dualbrain.ValidationSkippedNote + ")"
		}
	default:
		content = "Proposal rejected by validation: " + dualbrain.RejectionReason(v.Critique)
	}
	return sink.Send(sse.EventResult, sse.Result{Content: content, IsComplete: true})
}

func contextFromPlan(plan *planner.Plan, mandate models.Mandate, msg string) *dualbrain.TradingContext {
	tc := &dualbrain.TradingContext{Mandate: mandate, UserRequest: msg}
	if st := plan.Step(planner.StepMarket); st != nil {
		tc.Market, _ = st.Output().(models.MarketSnapshot)
	}
	if st := plan.Step(planner.StepPositions); st != nil {
		tc.Positions, _ = st.Output().([]models.Position)
	}
	return tc
}

func planEvent(p *planner.Plan) sse.Plan {
	ev := sse.Plan{Category: string(p.Category)}
	for _, st := range p.Steps {
		ev.Steps = append(ev.Steps, sse.PlanStep{ID: st.ID, Description: st.Description, Tool: st.Tool, Status: string(st.Status)})
	}
	return ev
}

// runModel 模型路径：流式输出推理与正文，再执行模型要求的工具
func (s *Service) runModel(ctx context.Context, req Request, sink sse.Sink) error {
	a := s.opts.Model
	if a == nil {
		return apperr.New(apperr.KindOffline, "chat", "chat model is not configured")
	}
	_ = sink.Send(sse.EventStatus, sse.Status{Phase: PhaseThinking})

	state := extract.NewStreamState()
	var reasoningDone bool
	forward := func(d extract.Delta) {
		if d.Reasoning != "" || (d.ReasoningComplete && !reasoningDone && state.FullReasoning() != "") {
			_ = sink.Send(sse.EventReasoning, sse.Reasoning{Content: d.Reasoning, IsComplete: d.ReasoningComplete})
			reasoningDone = d.ReasoningComplete
		}
		if d.Content != "" {
			_ = sink.Send(sse.EventChunk, sse.Chunk{Content: d.Content})
		}
	}

	llmReq := s.modelRequest(req)
	streamed := false
	// 已经输出过分块的请求不再重试，否则增量会重复
	retryable := func(err error) bool { return !streamed && adk.IsRetryable(err) }
	c, err := adk.RetryIf(ctx, adk.MaxRetries, retryable, func() (*adk.Completion, error) {
		return adk.Stream(ctx, a.LLM, llmReq, a.Timeout(), func(content, thinking string) {
			streamed = true
			forward(state.Push(content, thinking))
		})
	})
	if err != nil {
		return err
	}
	if !streamed {
		forward(state.Push(c.Text, c.Reasoning))
	}
	forward(state.Finish())

	answer := state.FinalAnswer()
	summaries := s.runTools(ctx, c.Calls, answer, sink)

	final := strings.TrimSpace(extract.StripActions(answer))
	if final == "" {
		final = strings.Join(summaries, "\n")
	}
	return sink.Send(sse.EventResult, sse.Result{Content: final, IsComplete: true})
}

// runTools 执行原生函数调用，没有时执行正文中的 ACTION 行；返回各工具摘要
func (s *Service) runTools(ctx context.Context, calls []*genai.FunctionCall, answer string, sink sse.Sink) []string {
	var invs []tools.Invocation
	if len(calls) > 0 {
		var allowed []*genai.FunctionCall
		for _, fc := range calls {
			if s.refuseTrade(fc.Name, fc.Args, sink) {
				continue
			}
			_ = sink.Send(sse.EventAction, sse.Action{Tool: fc.Name, Args: fc.Args, Status: sse.ActionRunning})
			allowed = append(allowed, fc)
		}
		invs = s.opts.Router.ExecuteFunctionCalls(ctx, allowed)
	} else if act, ok := extract.ParseAction(answer); ok && !s.refuseTrade(act.Tool, act.Args, sink) {
		_ = sink.Send(sse.EventAction, sse.Action{Tool: act.Tool, Args: act.Args, Status: sse.ActionRunning})
		if inv, ok := s.opts.Router.ExecuteAction(ctx, answer); ok {
			invs = append(invs, inv)
		}
	}

	var summaries []string
	for _, inv := range invs {
		ev := sse.Action{Tool: inv.Tool, Args: inv.Args, Status: sse.ActionDone, Result: inv.Result.Data}
		if !inv.Result.Success {
			ev.Status, ev.Error = sse.ActionFailed, inv.Result.Error
		}
		_ = sink.Send(sse.EventAction, ev)
		_ = sink.Send(sse.EventResult, sse.Result{Content: inv.Summary, IsUpdate: true})
		summaries = append(summaries, inv.Summary)
	}
	return summaries
}

// refuseTrade 模型不能直接下单，只能走提案审批
func (s *Service) refuseTrade(tool string, args map[string]any, sink sse.Sink) bool {
	if tool != tools.ExecuteTrade {
		return false
	}
	log.Warn("model requested %s directly, refused", tool)
	_ = sink.Send(sse.EventAction, sse.Action{
		Tool:   tool,
		Args:   args,
		Status: sse.ActionFailed,
		Error:  "trades are executed only by approving a pending proposal",
	})
	return true
}

func (s *Service) modelRequest(req Request) *model.LLMRequest {
	reg := s.opts.Router.Registry()
	llmReq := adk.Request(systemPrompt(reg), req.Message)
	var history []*genai.Content
	for _, t := range req.History {
		role := string(genai.RoleUser)
		if t.Role == "assistant" || t.Role == string(genai.RoleModel) {
			role = string(genai.RoleModel)
		}
		history = append(history, &genai.Content{Role: role, Parts: []*genai.Part{genai.NewPartFromText(t.Content)}})
	}
	llmReq.Contents = append(history, llmReq.Contents...)

	var declared []*genai.FunctionDeclaration
	for _, d := range reg.Declarations() {
		if d.Name != tools.ExecuteTrade {
			declared = append(declared, d)
		}
	}
	llmReq.Config.Tools = []*genai.Tool{{FunctionDeclarations: declared}}
	return llmReq
}

// Operate 拉取交易上下文并执行双脑协商
func (s *Service) Operate(ctx context.Context, req OperateRequest, sink sse.Sink) (*models.ConsensusResult, error) {
	_ = sink.Send(sse.EventStatus, sse.Status{Phase: PhaseGathering})
	tc, err := dualbrain.Gather(ctx, s.opts.Broker, s.symbol(), s.opts.Mandate)
	if err != nil {
		return nil, fmt.Errorf("gather trading context: %w", err)
	}
	tc.UserRequest = strings.TrimSpace(req.Message)
	_ = sink.Send(sse.EventContext, sse.ContextFrom(tc.Market))

	res := s.opts.Orchestrator.Run(ctx, tc, dualbrain.Hooks{
		Phase:    func(p string) { _ = sink.Send(sse.EventStatus, sse.Status{Phase: p}) },
		Proposal: func(p *models.Proposal) { _ = sink.Send(sse.EventProposal, p) },
		Critique: func(c *models.Critique) { _ = sink.Send(sse.EventCritique, c) },
	})
	if res.Err != nil && res.Proposal == nil {
		return res, res.Err
	}
	_ = sink.Send(sse.EventResult, sse.Result{Content: describe(res), IsComplete: true})
	return res, nil
}

func describe(r *models.ConsensusResult) string {
	switch {
	case r.Action == models.ActionHold:
		return "HOLD: " + r.Reasoning
	case r.Error != "":
		return "Critic unavailable, proposal not approved: " + r.Error
	case r.AwaitingHumanApproval:
		return fmt.Sprintf("Consensus reached. %s %s awaiting approval (id %s)", r.Proposal.Action, r.Proposal.Terms.String(), r.Proposal.ID)
	default:
		return "Critic rejected the proposal: " + r.RejectionReason
	}
}
