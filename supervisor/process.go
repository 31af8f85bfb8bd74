package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const stopTimeout = 5 * time.Second

// ErrExited is returned when the backing server exits before it is reachable.
var ErrExited = errors.New("server process exited")

// Command describes how to start the backing server.
type Command struct {
	Name   string
	Args   []string
	Label  string
	Logger zerolog.Logger
}

// DefaultCommand returns the serena command that listens on the host and port
// of endpoint.
func DefaultCommand(endpoint string) (*Command, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	host := u.Hostname()
	if host == "" {
		host = "0.0.0.0"
	}
	port := u.Port()
	if port == "" {
		port = "12341"
	}
	return &Command{
		Name: "uvx",
		Args: []string{
			"--from", "git+https://github.com/oraios/serena",
			"serena-mcp-server",
			"--transport", "streamable-http",
			"--host", host,
			"--port", port,
			"--context", "ide",
			"--open-web-dashboard", "false",
		},
		Label: "serena",
	}, nil
}

// Process is a running backing server.
type Process struct {
	cmd      *exec.Cmd
	label    string
	logger   zerolog.Logger
	done     chan struct{}
	err      error
	stopping bool
	mux      sync.Mutex
}

// Spawn starts command. Its stderr is relayed line by line to the command
// logger and its stdout is discarded.
func Spawn(command *Command) (*Process, error) {
	if command.Name == "" {
		return nil, errors.New("empty server command")
	}
	cmd := exec.Command(command.Name, command.Args...)
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	label := command.Label
	if label == "" {
		label = command.Name
	}
	ret := &Process{cmd: cmd, label: label, logger: command.Logger, done: make(chan struct{})}
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %v: %w", label, err)
	}
	ret.logger.Info().Str("server", label).Int("pid", cmd.Process.Pid).Msg("started backing server")
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			ret.logger.Info().Str("server", label).Msg(scanner.Text())
		}
	}()
	go func() {
		<-relayed
		err := cmd.Wait()
		ret.mux.Lock()
		ret.err = err
		ret.mux.Unlock()
		close(ret.done)
	}()
	return ret, nil
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.err
}

// Stopping reports whether Stop was called.
func (p *Process) Stopping() bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.stopping
}

// Stop asks the process to terminate and kills it if it is still running
// after a grace period.
func (p *Process) Stop() {
	p.mux.Lock()
	p.stopping = true
	p.mux.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	p.logger.Info().Str("server", p.label).Msg("stopping backing server")
	if err := p.cmd.Process.Signal(terminate); err != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}
