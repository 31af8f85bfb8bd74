package supervisor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	assert.True(t, IsReachable(context.Background(), srv.URL+"/mcp", time.Second))

	closed := httptest.NewServer(http.NotFoundHandler())
	endpoint := closed.URL
	closed.Close()
	assert.False(t, IsReachable(context.Background(), endpoint, 200*time.Millisecond))
}

func TestProbeTargets(t *testing.T) {
	var testCases = []struct {
		description string
		endpoint    string
		expected    []string
	}{
		{
			description: "localhost adds loopback",
			endpoint:    "http://localhost:12341/mcp",
			expected:    []string{"http://localhost:12341/mcp", "http://127.0.0.1:12341/mcp"},
		},
		{
			description: "remote host unchanged",
			endpoint:    "https://example.com/mcp",
			expected:    []string{"https://example.com/mcp"},
		},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, probeTargets(testCase.endpoint), testCase.description)
	}
}

func TestWaitReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	err := WaitReachable(context.Background(), srv.URL, Probe{CheckInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
}

func TestWaitReachable_Timeout(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	endpoint := closed.URL
	closed.Close()

	probe := Probe{Timeout: 50 * time.Millisecond, CheckInterval: 10 * time.Millisecond, StartupTimeout: 50 * time.Millisecond}
	err := WaitReachable(context.Background(), endpoint, probe, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStartupTimeout))
}

func TestWaitReachable_Exited(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	endpoint := closed.URL
	closed.Close()

	exited := make(chan struct{})
	close(exited)
	probe := Probe{Timeout: 50 * time.Millisecond, CheckInterval: 10 * time.Millisecond, StartupTimeout: time.Minute}
	err := WaitReachable(context.Background(), endpoint, probe, exited)
	assert.True(t, errors.Is(err, ErrExited))
}
