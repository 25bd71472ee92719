package sse

import (
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

// Event SSE 事件名
type Event string

const (
	EventStatus    Event = "status"
	EventReasoning Event = "reasoning"
	EventChunk     Event = "chunk"
	EventAction    Event = "action"
	EventContext   Event = "context"
	EventPlan      Event = "plan"
	EventStep      Event = "step"
	EventData      Event = "data"
	EventResult    Event = "result"
	EventProposal  Event = "proposal"
	EventCritique  Event = "critique"
	EventExecution Event = "execution"
	EventDone      Event = "done"
	EventError     Event = "error"
)

// Status 阶段变化
type Status struct {
	Phase string `json:"phase"`
}

// Reasoning 推理增量
type Reasoning struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
}

// Chunk 正文增量
type Chunk struct {
	Content string `json:"content"`
}

// 工具调用状态
const (
	ActionRunning = "running"
	ActionDone    = "complete"
	ActionFailed  = "error"
)

// Action 工具调用
type Action struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Status string         `json:"status"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Context 行情上下文
type Context struct {
	SPYPrice   float64   `json:"spyPrice"`
	VIX        float64   `json:"vix"`
	MarketOpen bool      `json:"marketOpen"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// ContextFrom 由行情快照构造
func ContextFrom(s models.MarketSnapshot) Context {
	return Context{SPYPrice: s.SPY, VIX: s.VIX, MarketOpen: s.MarketOpen, LastUpdate: s.Timestamp}
}

// PlanStep 计划中的一步
type PlanStep struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Tool        string `json:"tool,omitempty"`
	Status      string `json:"status"`
}

// Plan 计划
type Plan struct {
	Category string     `json:"category"`
	Steps    []PlanStep `json:"steps"`
}

// Step 步骤状态变化
type Step struct {
	StepID string `json:"stepId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Data 步骤产出的数据
type Data struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Result 可展示的结果文本
type Result struct {
	Content    string `json:"content"`
	IsUpdate   bool   `json:"isUpdate,omitempty"`
	IsComplete bool   `json:"isComplete,omitempty"`
}

// Execution 下单结果
type Execution struct {
	ExecutionResult *models.ExecutionResult `json:"executionResult"`
	Note            string                  `json:"note,omitempty"` // 执行的提案未经完整复核时的备注
}

// Error 错误
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Done 流结束
type Done struct {
	Success    bool  `json:"success"`
	DurationMs int64 `json:"durationMs"`
}
