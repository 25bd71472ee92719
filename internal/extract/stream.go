package extract

import "strings"

// Mode 推理提取策略
type Mode int

const (
	ModeUndetermined Mode = iota
	ModeTagBased          // 推理以 <think> 标记嵌在正文中
	ModeFieldBased        // 推理通过独立字段下发
)

func (m Mode) String() string {
	switch m {
	case ModeTagBased:
		return "TAG_BASED"
	case ModeFieldBased:
		return "FIELD_BASED"
	default:
		return "UNDETERMINED"
	}
}

// Delta 一次推送产生的新增内容
type Delta struct {
	Content           string
	Reasoning         string
	ReasoningComplete bool
}

// Empty 是否没有新增内容
func (d Delta) Empty() bool {
	return d.Content == "" && d.Reasoning == ""
}

// StreamState 单次请求的流式累积器，非并发安全
type StreamState struct {
	raw      strings.Builder
	thinking strings.Builder

	fullContent   string
	fullReasoning string

	lastEmittedContentLength   int
	lastEmittedReasoningLength int

	mode              Mode
	reasoningComplete bool
}

// NewStreamState 创建累积器
func NewStreamState() *StreamState {
	return &StreamState{}
}

// Mode 当前策略
func (s *StreamState) Mode() Mode { return s.mode }

// ReasoningComplete 推理是否结束
func (s *StreamState) ReasoningComplete() bool { return s.reasoningComplete }

// FullContent 到目前为止已发出的回答
func (s *StreamState) FullContent() string { return s.fullContent[:s.lastEmittedContentLength] }

// FullReasoning 到目前为止已发出的推理
func (s *StreamState) FullReasoning() string { return s.fullReasoning[:s.lastEmittedReasoningLength] }

// Push 推入一个分块，返回新增的回答与推理字符
func (s *StreamState) Push(content, thinking string) Delta {
	if s.mode == ModeUndetermined {
		switch {
		case thinking != "":
			s.mode = ModeFieldBased
		case strings.Contains(s.raw.String()+content, OpenMarker):
			s.mode = ModeTagBased
		}
	}
	s.raw.WriteString(content)
	if thinking != "" && s.mode == ModeFieldBased {
		s.thinking.WriteString(thinking)
	}
	s.recompute(true)
	return s.emit()
}

// Finish 流结束时冲刷剩余内容
func (s *StreamState) Finish() Delta {
	s.recompute(false)
	s.reasoningComplete = true
	return s.emit()
}

// FinalAnswer 结束后展示给用户的回答，去掉残留标记
func (s *StreamState) FinalAnswer() string {
	return strings.TrimSpace(StripMarkers(s.FullContent()))
}

func (s *StreamState) recompute(holdback bool) {
	raw := s.raw.String()
	switch s.mode {
	case ModeFieldBased:
		s.fullContent = raw
		s.fullReasoning = s.thinking.String()
		if raw != "" {
			s.reasoningComplete = true
		}
	default:
		sc := scan(raw, holdback)
		s.fullContent = sc.pre + sc.post
		if s.mode == ModeTagBased {
			if !holdback && !sc.closed {
				// 未闭合的推理块结束时丢弃末尾不完整的闭合标记
				sc.reasoning = sc.reasoning[:len(sc.reasoning)-partialSuffix(sc.reasoning, CloseMarker)]
			}
			s.fullReasoning = sc.reasoning
			s.reasoningComplete = sc.closed
		}
	}
}

func (s *StreamState) emit() Delta {
	d := Delta{ReasoningComplete: s.reasoningComplete}
	d.Content, s.lastEmittedContentLength = delta(s.fullContent, s.lastEmittedContentLength)
	d.Reasoning, s.lastEmittedReasoningLength = delta(s.fullReasoning, s.lastEmittedReasoningLength)
	return d
}

// delta 返回 value[previous:]，value 比已发出的更短时不回退
func delta(value string, previous int) (string, int) {
	if len(value) <= previous {
		return "", previous
	}
	return value[previous:], len(value)
}
