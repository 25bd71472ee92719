package tools

import (
	"context"
	"sort"

	"google.golang.org/genai"

	"github.com/bearhedge/APEYOLO-sub001/internal/extract"
)

// Invocation 一次工具调用及其结果
type Invocation struct {
	ID      string         `json:"id,omitempty"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Result  Result         `json:"result"`
	Summary string         `json:"summary"`
}

// Response 转为回传给模型的 FunctionResponse
func (inv Invocation) Response() *genai.FunctionResponse {
	resp := map[string]any{"success": inv.Result.Success}
	if inv.Result.Success {
		resp["data"] = inv.Result.Data
	} else {
		resp["error"] = inv.Result.Error
	}
	return &genai.FunctionResponse{ID: inv.ID, Name: inv.Tool, Response: resp}
}

// Router 识别两种调用形式并交给注册表执行
type Router struct {
	registry *Registry
}

// NewRouter 创建路由
func NewRouter(r *Registry) *Router {
	return &Router{registry: r}
}

// Registry 返回底层注册表
func (r *Router) Registry() *Registry { return r.registry }

// Execute 按名称执行并生成摘要
func (r *Router) Execute(ctx context.Context, name string, args map[string]any) Invocation {
	res := r.registry.Execute(ctx, name, args)
	log.Info("tool %s(%s) success=%v", name, describeArgs(args), res.Success)
	return Invocation{Tool: name, Args: args, Result: res, Summary: Format(name, res)}
}

// ExecuteAction 执行文本中的 `ACTION: tool(args)` 指令，没有指令时返回 false
func (r *Router) ExecuteAction(ctx context.Context, text string) (Invocation, bool) {
	action, ok := extract.ParseAction(text)
	if !ok {
		return Invocation{}, false
	}
	return r.Execute(ctx, action.Tool, action.Args), true
}

// ExecuteFunctionCalls 按到达顺序执行模型原生返回的函数调用
func (r *Router) ExecuteFunctionCalls(ctx context.Context, calls []*genai.FunctionCall) []Invocation {
	out := make([]Invocation, 0, len(calls))
	for _, c := range calls {
		if c == nil {
			continue
		}
		inv := r.Execute(ctx, c.Name, c.Args)
		inv.ID = c.ID
		out = append(out, inv)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
