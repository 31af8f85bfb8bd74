package bridge

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Option represents a service option
type Option func(s *Service)

// WithInput sets the local input, os.Stdin by default
func WithInput(r io.Reader) Option {
	return func(s *Service) {
		s.input = r
	}
}

// WithOutput sets the local output, os.Stdout by default
func WithOutput(w io.Writer) Option {
	return func(s *Service) {
		s.output = w
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBootstrapMethod sets the method that opens a session
func WithBootstrapMethod(method string) Option {
	return func(s *Service) {
		if method != "" {
			s.bootstrapMethod = method
		}
	}
}

// WithReconnectDelay sets the wait before the notification stream is reopened
func WithReconnectDelay(delay time.Duration) Option {
	return func(s *Service) {
		if delay > 0 {
			s.reconnectDelay = delay
		}
	}
}

// WithReplyOnFailure answers failed requests with a JSON-RPC error instead of dropping them
func WithReplyOnFailure(enabled bool) Option {
	return func(s *Service) {
		s.replyOnFailure = enabled
	}
}
