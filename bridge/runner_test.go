package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdaks05/AI-Firend-V2/transport"
)

func TestServe(t *testing.T) {
	var mux sync.Mutex
	var sessions []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mux.Lock()
		sessions = append(sessions, r.Header.Get(transport.HeaderSessionID))
		mux.Unlock()
		if r.Header.Get("X-Team") != "core" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if strings.Contains(string(body), `"initialize"`) {
			w.Header().Set(transport.HeaderSessionID, "abc")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n\n"))
	}))
	defer srv.Close()

	options := &Options{URL: srv.URL + "/mcp", NoSpawn: true, NoRepair: true, Headers: []string{"X-Team: core"}}
	options.Init()
	output := &syncBuffer{}
	input := strings.NewReader(lines(initializeLine, `{"jsonrpc":"2.0","id":2,"method":"ping"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, Serve(ctx, options, input, output, zerolog.Nop()))

	assert.Equal(t, []string{
		`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26"}}`,
		`{"jsonrpc":"2.0","id":2,"result":{}}`,
	}, output.Lines())
	mux.Lock()
	defer mux.Unlock()
	assert.Equal(t, []string{"", "abc"}, sessions)
}

func TestServe_InvalidHeader(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	options := &Options{URL: srv.URL, NoSpawn: true, NoRepair: true, Headers: []string{"broken"}}
	options.Init()
	err := Serve(context.Background(), options, strings.NewReader(""), &syncBuffer{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestServe_MissingOAuth2Config(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	options := &Options{URL: srv.URL, NoSpawn: true, NoRepair: true, OAuth2ConfigURL: filepath.Join(t.TempDir(), "oauth.json")}
	options.Init()
	err := Serve(context.Background(), options, strings.NewReader(""), &syncBuffer{}, zerolog.Nop())
	assert.Error(t, err)
}
