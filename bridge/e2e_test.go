package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdaks05/AI-Firend-V2/transport"
)

func TestService_StreamableHTTPServer(t *testing.T) {
	mcpServer := server.NewMCPServer("demo-http", "1.0.0", server.WithToolCapabilities(false))
	mcpServer.AddTool(mcp.NewTool("ping"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	})
	srv := server.NewTestStreamableHTTPServer(mcpServer)
	defer srv.Close()

	client, err := transport.New(srv.URL+"/mcp", transport.WithRequestTimeout(5*time.Second))
	require.NoError(t, err)

	input := strings.NewReader(lines(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"bridge-test","version":"1.0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ping","arguments":{}}}`,
	))
	output := &syncBuffer{}
	service := New(client, WithInput(input), WithOutput(output), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, service.Run(ctx))
	assert.NotEmpty(t, service.SessionID())

	responses := map[string]map[string]any{}
	for _, line := range output.Lines() {
		var envelope struct {
			ID     json.RawMessage `json:"id"`
			Result map[string]any  `json:"result"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &envelope), line)
		if len(envelope.ID) > 0 {
			responses[string(envelope.ID)] = envelope.Result
		}
	}
	require.Len(t, responses, 3)
	assert.Contains(t, responses["1"], "serverInfo")
	assert.NotNil(t, responses["2"])
	content, err := json.Marshal(responses["3"]["content"])
	require.NoError(t, err)
	assert.Contains(t, string(content), "pong")
}
