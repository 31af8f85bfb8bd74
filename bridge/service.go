package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"

	"github.com/skdaks05/AI-Firend-V2/codec"
	"github.com/skdaks05/AI-Firend-V2/internal/metrics"
	"github.com/skdaks05/AI-Firend-V2/transport"
)

const (
	// DefaultReconnectDelay is the fixed wait before the notification stream is reopened.
	DefaultReconnectDelay = time.Second

	outboxSize     = 256
	errorBodyLimit = 4096
)

// Transport issues the remote calls of the bridge.
type Transport interface {
	Post(ctx context.Context, body []byte, sessionID string) (*http.Response, error)
	Stream(ctx context.Context, sessionID string) (*http.Response, error)
}

// Service relays newline-delimited JSON-RPC between a local reader/writer pair
// and a Streamable HTTP endpoint.
//
// All bridge state (session, gate, stream state, shutdown flag and output) is
// owned by the goroutine running Run. Readers, exchanges, the notification
// stream and reconnect timers report to it through a single event channel.
type Service struct {
	transport       Transport
	input           io.Reader
	output          io.Writer
	logger          zerolog.Logger
	bootstrapMethod string
	reconnectDelay  time.Duration
	replyOnFailure  bool

	session      Session
	gate         *Gate
	streamState  StreamState
	streamCancel context.CancelFunc
	streamGen    int
	shuttingDown bool
	inputClosed  bool
	inflight     int
	seq          int
	writeErr     error

	events chan any
	outbox chan *exchange
	done   chan struct{}
}

// exchange is one POST and the consumption of its response.
type exchange struct {
	seq       int
	msg       *Message
	sessionID string
	bootstrap bool
}

type inputLine struct {
	data []byte
}

type inputClosed struct {
	err error
}

type exchangeResponse struct {
	x         *exchange
	status    int
	sessionID string
}

type exchangePayload struct {
	x    *exchange
	data []byte
}

type exchangeDone struct {
	x    *exchange
	kind transport.Kind
	err  error
}

// SessionID returns the current session id. It must only be called once Run returned.
func (s *Service) SessionID() string {
	return s.session.ID()
}

// Run relays messages until ctx is canceled or the local input ends and every
// in-flight exchange completed. It returns an error only when local output
// fails.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)
	go s.readInput(ctx)
	go s.dispatch(ctx)
	s.logger.Debug().Str("bootstrap", s.bootstrapMethod).Msg("bridge started")
	for {
		if s.writeErr != nil {
			s.beginShutdown()
			return fmt.Errorf("failed to write local output: %w", s.writeErr)
		}
		if s.inputClosed && s.inflight == 0 && s.gate.Pending() == 0 {
			s.beginShutdown()
			s.logger.Debug().Msg("local input closed, bridge stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			s.beginShutdown()
			s.logger.Debug().Msg("bridge canceled")
			return nil
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) handle(ctx context.Context, ev any) {
	switch actual := ev.(type) {
	case inputLine:
		s.onInputLine(ctx, actual.data)
	case inputClosed:
		s.inputClosed = true
		if actual.err != nil {
			s.logger.Error().Err(actual.err).Msg("failed to read local input")
		}
	case exchangeResponse:
		s.logger.Debug().Int("seq", actual.x.seq).Int("status", actual.status).Str("method", actual.x.msg.Method).Msg("remote response")
		s.captureSession(actual.sessionID)
	case exchangePayload:
		s.write(actual.data, metrics.SourceResponse)
	case exchangeDone:
		s.onExchangeDone(ctx, actual)
	case streamResponse:
		s.onStreamResponse(ctx, actual)
	case streamPayload:
		s.write(actual.data, metrics.SourceStream)
	case streamClosed:
		s.onStreamClosed(ctx, actual)
	case streamReconnect:
		s.onStreamReconnect(ctx)
	}
}

func (s *Service) onInputLine(ctx context.Context, line []byte) {
	msg, err := ParseMessage(line)
	if err != nil {
		metrics.RecordDropped("invalid_json")
		s.logger.Warn().Err(err).Int("bytes", len(line)).Msg("dropping malformed local message")
		return
	}
	s.submit(ctx, msg)
}

// submit forwards msg now or defers it behind the outstanding bootstrap request.
func (s *Service) submit(ctx context.Context, msg *Message) {
	if !s.gate.Admit(msg) {
		metrics.RecordQueued()
		s.logger.Debug().Str("method", msg.Method).Int("pending", s.gate.Pending()).Msg("queued behind bootstrap")
		return
	}
	s.forward(ctx, msg)
}

func (s *Service) forward(ctx context.Context, msg *Message) {
	s.seq++
	x := &exchange{
		seq:       s.seq,
		msg:       msg,
		sessionID: s.session.ID(),
		bootstrap: s.gate.IsBootstrap(msg),
	}
	s.inflight++
	metrics.RecordForwarded()
	select {
	case s.outbox <- x:
	case <-ctx.Done():
	}
}

// flush drains the pending queue through the same path as live messages; a
// queued bootstrap request closes the gate again and stops the flush.
func (s *Service) flush(ctx context.Context) {
	for {
		msg, ok := s.gate.Next()
		if !ok {
			return
		}
		s.submit(ctx, msg)
	}
}

func (s *Service) onExchangeDone(ctx context.Context, ev exchangeDone) {
	s.inflight--
	if ev.err != nil {
		s.onExchangeFailure(ev.x, ev.err)
	}
	if !ev.x.bootstrap {
		return
	}
	s.gate.Release()
	s.flush(ctx)
	if ev.err == nil && (ev.kind == transport.KindJSON || ev.kind == transport.KindEventStream) {
		s.connectStream(ctx)
	}
}

func (s *Service) onExchangeFailure(x *exchange, err error) {
	reason := "transport"
	var statusErr *transport.StatusError
	switch {
	case errors.As(err, &statusErr):
		reason = "status"
	case errors.Is(err, transport.ErrRequestTimeout):
		reason = "timeout"
	case errors.Is(err, errInvalidJSON):
		reason = "invalid_response"
	}
	metrics.RecordPostFailure(reason)
	s.logger.Error().Err(err).Str("method", x.msg.Method).RawJSON("id", rawID(x.msg.ID)).Msg("remote request failed")
	if s.replyOnFailure && x.msg.IsRequest() && !s.shuttingDown {
		s.replyFailure(x.msg, err)
	}
}

// replyFailure answers a failed request locally with a JSON-RPC internal error.
// The id is echoed as received and the reply carries no result member.
func (s *Service) replyFailure(msg *Message, cause error) {
	reply := struct {
		Jsonrpc string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   *jsonrpc.Error  `json:"error"`
	}{
		Jsonrpc: jsonrpc.Version,
		ID:      msg.ID,
		Error:   jsonrpc.NewInternalError(cause.Error(), nil),
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode failure reply")
		return
	}
	s.write(data, metrics.SourceFailure)
}

func (s *Service) captureSession(id string) {
	previous := s.session.ID()
	if !s.session.SetID(id) {
		return
	}
	if previous == "" {
		s.logger.Info().Str("session", id).Msg("session assigned")
		return
	}
	s.logger.Info().Str("session", id).Str("previous", previous).Msg("session replaced")
}

// write emits one message to local output with a single Write call.
func (s *Service) write(payload []byte, source string) {
	if s.writeErr != nil {
		metrics.RecordDropped("output_closed")
		return
	}
	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')
	if _, err := s.output.Write(line); err != nil {
		s.writeErr = err
		return
	}
	metrics.RecordPayload(source)
}

func (s *Service) beginShutdown() {
	s.shuttingDown = true
	s.stopStream()
}

// emit delivers ev to the event loop unless the loop or ctx is gone.
func (s *Service) emit(ctx context.Context, ev any) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
	case <-ctx.Done():
	}
	return false
}

func (s *Service) readInput(ctx context.Context) {
	err := codec.ReadLines(ctx, s.input, func(line []byte) {
		s.emit(ctx, inputLine{data: line})
	})
	s.emit(ctx, inputClosed{err: err})
}

// dispatch issues exchanges in the order they were forwarded. The next request
// is only started once the previous one has been written to the connection, so
// a slow response never delays later requests.
func (s *Service) dispatch(ctx context.Context) {
	for {
		select {
		case x := <-s.outbox:
			sent := make(chan struct{})
			var once sync.Once
			go s.exchange(ctx, x, func() { once.Do(func() { close(sent) }) })
			select {
			case <-sent:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Service) exchange(ctx context.Context, x *exchange, sent func()) {
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { sent() },
	}
	resp, err := s.transport.Post(httptrace.WithClientTrace(ctx, trace), x.msg.Raw, x.sessionID)
	sent()
	if err != nil {
		s.emit(ctx, exchangeDone{x: x, err: err})
		return
	}
	kind := transport.Classify(resp)
	if !s.emit(ctx, exchangeResponse{x: x, status: resp.StatusCode, sessionID: transport.SessionID(resp)}) {
		_ = resp.Body.Close()
		return
	}
	err = s.consume(ctx, x, resp, kind)
	s.emit(ctx, exchangeDone{x: x, kind: kind, err: err})
}

// consume reads the response body according to its kind and always closes it.
func (s *Service) consume(ctx context.Context, x *exchange, resp *http.Response, kind transport.Kind) error {
	switch kind {
	case transport.KindAccepted:
		transport.Drain(resp)
		return nil
	case transport.KindEventStream:
		defer resp.Body.Close()
		return codec.ReadSSE(ctx, resp.Body, func(payload []byte) {
			s.emit(ctx, exchangePayload{x: x, data: payload})
		})
	case transport.KindJSON:
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			return nil
		}
		compact := &bytes.Buffer{}
		if err = json.Compact(compact, body); err != nil {
			return fmt.Errorf("%w in response body: %v", errInvalidJSON, err)
		}
		s.emit(ctx, exchangePayload{x: x, data: compact.Bytes()})
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	transport.Drain(resp)
	return &transport.StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}

func rawID(id json.RawMessage) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}

// New creates a bridge service on top of t.
func New(t Transport, options ...Option) *Service {
	ret := &Service{
		transport:       t,
		input:           os.Stdin,
		output:          os.Stdout,
		logger:          zerolog.Nop(),
		bootstrapMethod: schema.MethodInitialize,
		reconnectDelay:  DefaultReconnectDelay,
		events:          make(chan any),
		outbox:          make(chan *exchange, outboxSize),
		done:            make(chan struct{}),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.logger = ret.logger.With().Str("bridge", uuid.NewString()[:8]).Logger()
	ret.gate = NewGate(ret.bootstrapMethod)
	return ret
}
