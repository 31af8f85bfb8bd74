// Package supervisor probes the remote endpoint and runs the backing server
// when nothing is listening yet.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultCheckInterval is the delay between startup probes.
	DefaultCheckInterval = time.Second
	// DefaultStartupTimeout bounds how long a spawned server may take to listen.
	DefaultStartupTimeout = 120 * time.Second
	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 2 * time.Second
)

// ErrStartupTimeout is returned when the endpoint never became reachable.
var ErrStartupTimeout = errors.New("timed out waiting for server to start")

// Probe configures WaitReachable.
type Probe struct {
	Timeout        time.Duration
	CheckInterval  time.Duration
	StartupTimeout time.Duration
}

func (p *Probe) init() {
	if p.Timeout <= 0 {
		p.Timeout = DefaultProbeTimeout
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = DefaultCheckInterval
	}
	if p.StartupTimeout <= 0 {
		p.StartupTimeout = DefaultStartupTimeout
	}
}

// IsReachable reports whether anything answers HTTP at endpoint. Any status
// counts. A localhost endpoint is also tried as 127.0.0.1.
func IsReachable(ctx context.Context, endpoint string, timeout time.Duration) bool {
	for _, target := range probeTargets(endpoint) {
		if get(ctx, target, timeout) {
			return true
		}
	}
	return false
}

func probeTargets(endpoint string) []string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() != "localhost" {
		return []string{endpoint}
	}
	return []string{endpoint, strings.Replace(endpoint, "localhost", "127.0.0.1", 1)}
}

func get(ctx context.Context, target string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// WaitReachable polls endpoint until it answers, the startup timeout elapses,
// ctx is canceled or exited is closed.
func WaitReachable(ctx context.Context, endpoint string, probe Probe, exited <-chan struct{}) error {
	probe.init()
	deadline := time.Now().Add(probe.StartupTimeout)
	ticker := time.NewTicker(probe.CheckInterval)
	defer ticker.Stop()
	for {
		if IsReachable(ctx, endpoint, probe.Timeout) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %v after %s", ErrStartupTimeout, endpoint, probe.StartupTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return ErrExited
		case <-ticker.C:
		}
	}
}
