package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/viant/scy/auth/flow"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/skdaks05/AI-Firend-V2/internal/logx"
	"github.com/skdaks05/AI-Firend-V2/internal/metrics"
	"github.com/skdaks05/AI-Firend-V2/repair"
	"github.com/skdaks05/AI-Firend-V2/supervisor"
	"github.com/skdaks05/AI-Firend-V2/transport"
)

// Run parses args and bridges stdin/stdout to the remote endpoint until
// SIGINT, SIGTERM or the end of stdin.
func Run(args []string) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if options.ConfigURL != "" {
		base, err := LoadOptions(ctx, options.ConfigURL)
		if err != nil {
			return err
		}
		options.Merge(base)
	}
	options.Init()
	if err := options.Validate(); err != nil {
		return err
	}
	logx.Configure(options.LogLevel)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		logx.Log.Warn().Msg("stdin is a terminal; expecting one JSON-RPC message per line")
	}
	return Serve(ctx, options, os.Stdin, os.Stdout, logx.Log)
}

// Serve runs the startup steps and the bridge with initialized options.
func Serve(ctx context.Context, options *Options, input io.Reader, output io.Writer, logger zerolog.Logger) error {
	if options.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics.Register(registry)
		addr, err := metrics.StartServer(ctx, options.MetricsAddr, registry)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", addr).Msg("serving metrics")
	}

	if !options.NoRepair {
		if home, err := os.UserHomeDir(); err == nil {
			if _, err = repair.New(logger).Repair(ctx, home); err != nil {
				logger.Warn().Err(err).Msg("failed to validate project configs")
			}
		}
	}

	process, err := ensureServer(ctx, options, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if process != nil {
		defer process.Stop()
	}

	headers, err := options.HeaderMap()
	if err != nil {
		return err
	}
	clientOptions := []transport.Option{
		transport.WithRequestTimeout(options.PostTimeout()),
		transport.WithToken(options.Token),
		transport.WithHeaders(headers),
		transport.WithLogger(logger),
	}
	if options.OAuth2ConfigURL != "" {
		source, err := transport.OAuth2TokenSource(ctx, options.OAuth2Config(), flow.NewBrowserFlow())
		if err != nil {
			return err
		}
		clientOptions = append(clientOptions, transport.WithTokenSource(source))
	}
	client, err := transport.New(options.URL, clientOptions...)
	if err != nil {
		return err
	}
	service := New(client,
		WithInput(input),
		WithOutput(output),
		WithLogger(logger),
		WithBootstrapMethod(options.BootstrapMethod),
		WithReconnectDelay(options.ReconnectDelay),
		WithReplyOnFailure(options.ReplyOnFailure))

	group, groupCtx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(groupCtx)
	defer stop()
	group.Go(func() error {
		defer stop()
		return service.Run(runCtx)
	})
	if process != nil {
		group.Go(func() error {
			select {
			case <-process.Done():
				if !process.Stopping() {
					logger.Error().Err(process.Err()).Msg("backing server exited")
				}
			case <-runCtx.Done():
			}
			return nil
		})
	}
	logger.Info().Str("url", options.URL).Msg("bridge ready")
	return group.Wait()
}

// ensureServer starts the backing server unless the endpoint already answers.
func ensureServer(ctx context.Context, options *Options, logger zerolog.Logger) (*supervisor.Process, error) {
	if supervisor.IsReachable(ctx, options.URL, options.ProbeTimeout()) {
		return nil, nil
	}
	if options.NoSpawn {
		logger.Warn().Str("url", options.URL).Msg("remote endpoint is not reachable")
		return nil, nil
	}
	command, err := options.serverCommand()
	if err != nil {
		return nil, err
	}
	command.Logger = logger
	logger.Info().Str("url", options.URL).Str("server", command.Label).Msg("starting backing server")
	process, err := supervisor.Spawn(command)
	if err != nil {
		return nil, err
	}
	probe := supervisor.Probe{Timeout: options.ProbeTimeout(), StartupTimeout: options.StartupTimeout()}
	if err = supervisor.WaitReachable(ctx, options.URL, probe, process.Done()); err != nil {
		process.Stop()
		if errors.Is(err, supervisor.ErrExited) {
			return nil, fmt.Errorf("%v: %w", command.Label, errors.Join(err, process.Err()))
		}
		return nil, err
	}
	logger.Info().Str("server", command.Label).Msg("backing server is ready")
	return process, nil
}

func (o *Options) serverCommand() (*supervisor.Command, error) {
	if len(o.ServerCommand) == 0 {
		return supervisor.DefaultCommand(o.URL)
	}
	return &supervisor.Command{Name: o.ServerCommand[0], Args: o.ServerCommand[1:], Label: o.ServerCommand[0]}, nil
}
