package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var actionLine = regexp.MustCompile(`(?m)^[ \t]*ACTION:[ \t]*([A-Za-z_][A-Za-z0-9_]*)[ \t]*\((.*)\)[ \t]*$`)

// Action 文本中的工具调用指令
type Action struct {
	Tool string
	Args map[string]any
	Line string
}

// ParseAction 查找第一行 `ACTION: tool(args)`
//
// args 可以是 JSON 对象、空或 key=value 列表。
func ParseAction(text string) (*Action, bool) {
	m := actionLine.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return &Action{
		Tool: m[1],
		Args: parseArgs(strings.TrimSpace(m[2])),
		Line: strings.TrimSpace(m[0]),
	}, true
}

// StripActions 去掉回答里的 ACTION 行
func StripActions(text string) string {
	return strings.TrimSpace(actionLine.ReplaceAllString(text, ""))
}

func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &args); err == nil {
			return args
		}
		return map[string]any{}
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			k, v, ok = strings.Cut(pair, ":")
		}
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		args[k] = scalar(strings.Trim(strings.TrimSpace(v), `"'`))
	}
	return args
}

func scalar(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}
