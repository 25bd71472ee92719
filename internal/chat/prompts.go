package chat

import (
	"fmt"
	"strings"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
)

const assistantSystem = `You are APEYOLO, a trading assistant for short-dated %s index options.
Answer concisely. When you need live data, either call one of the provided functions or
write a single line of the form:
ACTION: tool_name(key=value, key=value)
and nothing else on that line. Available tools:
%s
Never claim a trade was placed. Trades are only executed after a human approves a proposal.`

func systemPrompt(reg *tools.Registry) string {
	var b strings.Builder
	for _, d := range reg.Declarations() {
		if d.Name == tools.ExecuteTrade {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return fmt.Sprintf(assistantSystem, reg.Symbol(), strings.TrimRight(b.String(), "\n"))
}
