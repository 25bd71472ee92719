// Package extract 从模型的自由文本输出中恢复结构：推理与回答的拆分、
// 流式增量、JSON 对象以及 ACTION 工具调用行。
package extract

import "strings"

const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"
)

// Split SplitReasoning 的结果
type Split struct {
	Reasoning    string
	HasReasoning bool
	Answer       string
	Complete     bool
}

// SplitReasoning 拆分累积文本中的推理块与回答
//
// 完整推理块：返回推理与去掉推理块后的回答；只有开标记：返回部分推理，
// 回答为空，Complete=false；没有标记：回答为全文。
func SplitReasoning(text string) Split {
	s := scan(text, false)
	switch {
	case !s.found:
		return Split{Answer: text, Complete: true}
	case !s.closed:
		return Split{Reasoning: s.reasoning, HasReasoning: true, Complete: false}
	default:
		return Split{Reasoning: s.reasoning, HasReasoning: true, Answer: s.pre + s.post, Complete: true}
	}
}

// StripMarkers 删除残留的推理标记
func StripMarkers(text string) string {
	s := scan(text, false)
	if s.found && !s.closed {
		// 未闭合的推理块不属于回答
		text = s.pre
	}
	text = strings.ReplaceAll(text, OpenMarker, "")
	return strings.ReplaceAll(text, CloseMarker, "")
}

// RemoveReasoning 删除第一个完整推理块，返回剩余文本与推理内容
func RemoveReasoning(text string) (rest, reasoning string, found bool) {
	s := scan(text, false)
	if !s.found || !s.closed {
		return text, "", false
	}
	return s.pre + s.post, s.reasoning, true
}

type scanned struct {
	pre       string
	reasoning string
	post      string
	found     bool
	closed    bool
}

// scan 定位第一个推理块；holdback=true 时丢弃末尾可能是标记前缀的部分，
// 保证在不断增长的缓冲区上多次调用得到的各段都只会向后延长
func scan(text string, holdback bool) scanned {
	open := strings.Index(text, OpenMarker)
	if open < 0 {
		if holdback {
			text = text[:len(text)-partialSuffix(text, OpenMarker)]
		}
		return scanned{pre: text}
	}
	s := scanned{pre: text[:open], found: true}
	rest := text[open+len(OpenMarker):]
	end := strings.Index(rest, CloseMarker)
	if end < 0 {
		if holdback {
			rest = rest[:len(rest)-partialSuffix(rest, CloseMarker)]
		}
		s.reasoning = rest
		return s
	}
	s.reasoning = rest[:end]
	s.post = rest[end+len(CloseMarker):]
	s.closed = true
	return s
}

// partialSuffix 返回 s 末尾与 marker 真前缀重合的最大长度
func partialSuffix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
