package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

func TestCreateTransport(t *testing.T) {
	_, ok := createTransport(config.MCPConfig{Transport: "sse", Endpoint: "http://x/sse"}).(*mcp.SSEClientTransport)
	assert.True(t, ok)
	_, ok = createTransport(config.MCPConfig{Transport: "command", Command: "bridge"}).(*mcp.CommandTransport)
	assert.True(t, ok)
	_, ok = createTransport(config.MCPConfig{Endpoint: "http://x/mcp"}).(*mcp.StreamableClientTransport)
	assert.True(t, ok)
}

func TestUnreachableServerIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewManager("bridge", config.MCPConfig{Transport: "http", Endpoint: srv.URL})
	_, err := m.CallTool(context.Background(), "get_positions", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindOffline, apperr.KindOf(err))

	st := m.Status(context.Background())
	assert.False(t, st.Connected)
	assert.NotEmpty(t, st.Error)
	assert.NoError(t, m.Close())
}

func TestResultText(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "a"}, &mcp.TextContent{Text: "b"}}}
	assert.Equal(t, "a\nb", resultText(res))

	res = &mcp.CallToolResult{StructuredContent: map[string]any{"price": 1.5}}
	assert.Equal(t, `{"price":1.5}`, resultText(res))
}
