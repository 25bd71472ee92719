// Package mcp 管理与券商桥接 MCP 服务端之间的客户端会话
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var log = logger.New("MCP")

// ServerStatus MCP 服务器状态
type ServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// ToolInfo MCP 工具信息
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// connectTimeout 建立会话的超时
const connectTimeout = 10 * time.Second

// Manager 单个 MCP 服务端的会话管理器，首次调用时建立连接，传输出错后重连
type Manager struct {
	name      string
	transport func() mcp.Transport

	mu      sync.Mutex
	session *mcp.ClientSession
	lastErr error
}

// NewManager 根据配置创建管理器
func NewManager(name string, cfg config.MCPConfig) *Manager {
	return NewManagerWithTransport(name, func() mcp.Transport { return createTransport(cfg) })
}

// NewManagerWithTransport 使用自定义传输创建管理器
func NewManagerWithTransport(name string, transport func() mcp.Transport) *Manager {
	return &Manager{name: name, transport: transport}
}

// createTransport 根据配置创建 MCP 传输层
func createTransport(cfg config.MCPConfig) mcp.Transport {
	switch cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: cfg.Endpoint}
	case "command":
		return &mcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}
	default: // http
		return &mcp.StreamableClientTransport{Endpoint: cfg.Endpoint}
	}
}

func (m *Manager) connect(ctx context.Context) (*mcp.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	impl := &mcp.Implementation{Name: "apeyolo", Version: "1.0.0"}
	client := mcp.NewClient(impl, nil)
	session, err := client.Connect(cctx, m.transport(), nil)
	if err != nil {
		m.lastErr = err
		return nil, apperr.Wrap(apperr.KindOffline, "mcp.connect "+m.name, err)
	}
	log.Info("connected to MCP server %s", m.name)
	m.session, m.lastErr = session, nil
	return session, nil
}

// drop 丢弃失效会话，下次调用重新连接
func (m *Manager) drop(session *mcp.ClientSession, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == session {
		m.session = nil
		m.lastErr = err
		_ = session.Close()
	}
}

// CallTool 调用远端工具，返回文本内容
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	session, err := m.connect(ctx)
	if err != nil {
		return "", err
	}

	op := "mcp.call " + name
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return "", apperr.Classify(op, ctx.Err())
		}
		log.Warn("tool %s failed on %s, dropping session: %v", name, m.name, err)
		m.drop(session, err)
		return "", apperr.Wrap(apperr.KindOffline, op, err)
	}

	text := resultText(res)
	if res.IsError {
		return "", apperr.New(apperr.KindTool, op, text)
	}
	return text, nil
}

// resultText 拼接文本内容；没有文本时退回结构化内容
func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			return string(data)
		}
	}
	return strings.Join(parts, "\n")
}

// ListTools 获取服务端的工具列表
func (m *Manager) ListTools(ctx context.Context) ([]ToolInfo, error) {
	session, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := session.ListTools(ctx, nil)
	if err != nil {
		m.drop(session, err)
		return nil, apperr.Wrap(apperr.KindOffline, "mcp.list "+m.name, err)
	}

	tools := make([]ToolInfo, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description})
	}
	return tools, nil
}

// Status 返回连接状态，未连接时尝试连接一次
func (m *Manager) Status(ctx context.Context) ServerStatus {
	if _, err := m.connect(ctx); err != nil {
		return ServerStatus{Name: m.name, Error: err.Error()}
	}
	return ServerStatus{Name: m.name, Connected: true}
}

// Close 关闭会话
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	if err != nil {
		return fmt.Errorf("close mcp session %s: %w", m.name, err)
	}
	return nil
}
