package models

import "time"

// Decision 自动循环的决策
type Decision string

const (
	DecisionWait    Decision = "WAIT"
	DecisionHold    Decision = "HOLD"
	DecisionAnalyze Decision = "ANALYZE"
	DecisionPropose Decision = "PROPOSE"
	DecisionManage  Decision = "MANAGE"
	DecisionError   Decision = "ERROR"
)

// TickRecord 每次 tick 的审计记录，只追加
type TickRecord struct {
	ID         int64         `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Decision   Decision      `json:"decision"`
	Reasoning  string        `json:"reasoning,omitempty"`
	ModelTier  Tier          `json:"modelTier,omitempty"`
	ModelUsed  string        `json:"modelUsed,omitempty"`
	ProposalID string        `json:"proposalId,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// TickResult tick 接口返回值
type TickResult struct {
	Decision   Decision  `json:"decision"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Proposal   *Proposal `json:"proposal,omitempty"`
	ModelUsed  string    `json:"modelUsed,omitempty"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// Lesson 历史经验条目
type Lesson struct {
	ID         int64     `json:"id"`
	VIXBucket  string    `json:"vixBucket"`
	TimeBucket string    `json:"timeBucket"`
	Summary    string    `json:"summary"`
	Outcome    string    `json:"outcome,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VIXBucket 按波动率分桶
func VIXBucket(vix float64) string {
	switch {
	case vix < 15:
		return "low"
	case vix < 20:
		return "normal"
	case vix < 30:
		return "elevated"
	default:
		return "extreme"
	}
}

// TimeBucket 按美东时间段分桶
func TimeBucket(t time.Time) string {
	mins := t.Hour()*60 + t.Minute()
	switch {
	case mins < 10*60+30:
		return "open"
	case mins < 14*60:
		return "midday"
	default:
		return "close"
	}
}
