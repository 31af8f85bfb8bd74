package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Precedence(t *testing.T) {
	t.Setenv("OH_MY_AG_BRIDGE_PROBE_TIMEOUT_MS", "500")
	for _, name := range []string{"MCP_BRIDGE_URL", "MCP_BRIDGE_CONFIG", "MCP_BRIDGE_TOKEN", "LOG_LEVEL"} {
		t.Setenv(name, "")
	}
	config := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`url: http://127.0.0.1:9000/mcp
requestTimeout: 30s
reconnectDelay: 2s
probeTimeoutMs: 700
startupTimeoutMs: 1000
headers:
  - "X-Team: core"
logLevel: debug
`), 0o644))

	options := &Options{}
	_, err := flags.ParseArgs(options, []string{"-c", config, "--reconnect-delay", "3s", "--no-spawn"})
	require.NoError(t, err)
	base, err := LoadOptions(context.Background(), options.ConfigURL)
	require.NoError(t, err)
	options.Merge(base)
	options.Init()
	require.NoError(t, options.Validate())

	assert.Equal(t, "http://127.0.0.1:9000/mcp", options.URL)
	assert.Equal(t, 30*time.Second, options.PostTimeout())
	assert.Equal(t, 3*time.Second, options.ReconnectDelay, "flags win over the config file")
	assert.Equal(t, 500*time.Millisecond, options.ProbeTimeout(), "env wins over the config file")
	assert.Equal(t, time.Second, options.StartupTimeout())
	assert.Equal(t, "debug", options.LogLevel)
	assert.True(t, options.NoSpawn)
	headers, err := options.HeaderMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Team": "core"}, headers)
}

func TestOptions_Defaults(t *testing.T) {
	options := &Options{}
	options.Init()
	require.NoError(t, options.Validate())
	assert.Equal(t, DefaultURL, options.URL)
	assert.Equal(t, 60*time.Second, options.PostTimeout())
	assert.Equal(t, DefaultReconnectDelay, options.ReconnectDelay)
	assert.Equal(t, 2*time.Second, options.ProbeTimeout())
	assert.Equal(t, 120*time.Second, options.StartupTimeout())
	assert.Equal(t, "info", options.LogLevel)

	command, err := options.serverCommand()
	require.NoError(t, err)
	assert.Equal(t, "uvx", command.Name)

	options.ServerCommand = []string{"my-server", "--port", "1"}
	command, err = options.serverCommand()
	require.NoError(t, err)
	assert.Equal(t, "my-server", command.Name)
	assert.Equal(t, []string{"--port", "1"}, command.Args)
}

func TestOptions_Validate(t *testing.T) {
	negative := -time.Second
	var testCases = []struct {
		description string
		options     Options
	}{
		{description: "missing scheme", options: Options{URL: "localhost:12341/mcp"}},
		{description: "bad header", options: Options{URL: DefaultURL, Headers: []string{"no-colon"}}},
		{description: "negative timeout", options: Options{URL: DefaultURL, RequestTimeout: &negative}},
		{description: "token and oauth2", options: Options{URL: DefaultURL, Token: "abc", OAuth2ConfigURL: "oauth.json"}},
	}
	for _, testCase := range testCases {
		assert.Error(t, testCase.options.Validate(), testCase.description)
	}
}

func TestOptions_RequestTimeoutDisabled(t *testing.T) {
	options := &Options{}
	_, err := flags.ParseArgs(options, []string{"--request-timeout", "0"})
	require.NoError(t, err)
	options.Merge(&Options{RequestTimeout: ptrDuration(30 * time.Second)})
	options.Init()
	require.NoError(t, options.Validate())
	assert.Equal(t, time.Duration(0), options.PostTimeout(), "an explicit 0 is kept")
}

func TestOptions_OAuth2Config(t *testing.T) {
	t.Setenv("MCP_BRIDGE_OAUTH2_CONFIG", "")
	t.Setenv("MCP_BRIDGE_TOKEN", "")
	options := &Options{}
	_, err := flags.ParseArgs(options, []string{"--oauth2-config", "/tmp/oauth.json", "-k", "secret"})
	require.NoError(t, err)
	options.Init()
	require.NoError(t, options.Validate())
	assert.Equal(t, "/tmp/oauth.json|secret", options.OAuth2Config())

	options.EncryptionKey = ""
	assert.Equal(t, "/tmp/oauth.json", options.OAuth2Config())
}

func ptrDuration(d time.Duration) *time.Duration {
	return &d
}

func TestLoadOptions_Missing(t *testing.T) {
	_, err := LoadOptions(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
