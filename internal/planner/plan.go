package planner

import (
	"fmt"
	"strings"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// StepStatus 步骤状态
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// 步骤 id，同时作为 data 事件的 key
const (
	StepMarket    = "market"
	StepPositions = "positions"
	StepAccount   = "account"
	StepEngine    = "engine"
	StepProposal  = "proposal"
)

// Step 计划中的一步；Stage 相同的步骤互不依赖，可并发执行
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Stage       int            `json:"stage"`
	Status      StepStatus     `json:"status"`
	Error       string         `json:"error,omitempty"`

	output  any
	summary string
}

// Output 步骤成功时的数据
func (s *Step) Output() any { return s.output }

// Plan 一次请求内消费的计划，不持久化
type Plan struct {
	Category Category `json:"category"`
	Steps    []*Step  `json:"steps"`
}

// Step 按 id 查找步骤
func (p *Plan) Step(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Stages 按阶段分组，阶段号递增
func (p *Plan) Stages() [][]*Step {
	var out [][]*Step
	for _, s := range p.Steps {
		if len(out) == 0 || out[len(out)-1][0].Stage != s.Stage {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], s)
	}
	return out
}

func step(id, desc, tool string, stage int, args map[string]any) *Step {
	return &Step{ID: id, Description: desc, Tool: tool, Args: args, Stage: stage, Status: StepPending}
}

// Expand 把意图展开为固定的步骤列表；COMPLEX 没有计划
func Expand(cat Category, symbol string) (*Plan, bool) {
	market := func(stage int) *Step {
		return step(StepMarket, "Fetch market data", tools.GetMarketData, stage, map[string]any{"symbol": symbol})
	}
	var steps []*Step
	switch cat {
	case CategoryPrice, CategoryMarket:
		steps = []*Step{market(0)}
	case CategoryPosition:
		steps = []*Step{
			step(StepPositions, "Fetch open positions", tools.GetPositions, 0, nil),
			step(StepAccount, "Fetch account state", tools.GetAccount, 0, nil),
		}
	case CategoryTrade:
		steps = []*Step{
			market(0),
			step(StepPositions, "Fetch open positions", tools.GetPositions, 0, nil),
			step(StepEngine, "Run trading engine", tools.RunEngine, 1, map[string]any{"symbol": symbol}),
			step(StepProposal, "Synthesize proposal", "", 2, nil),
		}
	default:
		return nil, false
	}
	return &Plan{Category: cat, Steps: steps}, true
}

// Summarize 按步骤顺序拼出摘要，失败的步骤不出现
func Summarize(p *Plan) string {
	var lines []string
	for _, s := range p.Steps {
		if s.Status == StepComplete && s.summary != "" {
			lines = append(lines, s.summary)
		}
	}
	if len(lines) == 0 {
		return "No data available right now."
	}
	return strings.Join(lines, "\n")
}

// ProposalLine 提案摘要行
func ProposalLine(p *models.Proposal) string {
	return fmt.Sprintf("Proposal: %s %s", p.Action, p.Terms.String())
}
