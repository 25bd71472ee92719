package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var (
	ErrNoJSON         = apperr.New(apperr.KindMalformed, "", "no JSON object found")
	ErrIncompleteJSON = apperr.New(apperr.KindMalformed, "", "incomplete JSON (unmatched braces)")
)

var fenceLine = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+-]*[ \t]*$")

// Extraction JSON 提取结果
type Extraction struct {
	JSON      string // 原文中的对象子串
	Reasoning string
}

// ExtractJSON 从含噪声的文本中提取第一个顶层 JSON 对象
//
// 失败时 Extraction.Reasoning 仍带回已恢复的推理内容。
func ExtractJSON(text string) (Extraction, error) {
	var out Extraction
	text, out.Reasoning, _ = RemoveReasoning(text)
	text = stripFences(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return out, ErrNoJSON
	}
	end := matchBrace(text, start)
	if end < 0 {
		return out, ErrIncompleteJSON
	}
	candidate := text[start : end+1]

	var probe any
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return out, apperr.Wrap(apperr.KindMalformed, "", err)
	}
	out.JSON = candidate
	return out, nil
}

// Decode 提取并解码到 v
func Decode(text string, v any) (reasoning string, err error) {
	ext, err := ExtractJSON(text)
	if err != nil {
		return ext.Reasoning, err
	}
	if err := json.Unmarshal([]byte(ext.JSON), v); err != nil {
		return ext.Reasoning, apperr.Wrap(apperr.KindMalformed, "", err)
	}
	return ext.Reasoning, nil
}

func stripFences(text string) string {
	text = fenceLine.ReplaceAllString(text, "")
	trimmed := strings.TrimSpace(text)
	// 单行形式 ```json {...}```
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimLeft(strings.TrimPrefix(trimmed, "```"), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return trimmed
	}
	return text
}

// matchBrace 返回与 text[start] 处 '{' 匹配的 '}' 下标，不存在返回 -1
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
