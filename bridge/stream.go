package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/skdaks05/AI-Firend-V2/codec"
	"github.com/skdaks05/AI-Firend-V2/internal/metrics"
	"github.com/skdaks05/AI-Firend-V2/transport"
)

// StreamState is the state of the server-to-client notification stream.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamConnecting
	StreamOpen
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamOpen:
		return "open"
	}
	return "idle"
}

type streamTrigger int

const (
	triggerConnect    streamTrigger = iota // session known and no stream outstanding
	triggerAccepted                        // 200
	triggerNotAllowed                      // 405
	triggerConflict                        // 409
	triggerEnded                           // end of body, read or connect error, other status
)

func (t streamTrigger) String() string {
	switch t {
	case triggerConnect:
		return "connect"
	case triggerAccepted:
		return "accepted"
	case triggerNotAllowed:
		return "not-allowed"
	case triggerConflict:
		return "conflict"
	}
	return "ended"
}

type streamAction int

const (
	actionDial    streamAction = iota // mark active, issue GET
	actionRead                        // consume SSE frames
	actionRelease                     // clear active, stay idle
	actionYield                       // keep active, stay idle: the server already has a stream
	actionRetry                       // clear active, schedule a reconnect unless shutting down
)

type streamTransition struct {
	next   StreamState
	action streamAction
}

// streamTransitions is the complete lifecycle of the notification stream.
// Pairs that are not listed are ignored.
var streamTransitions = map[StreamState]map[streamTrigger]streamTransition{
	StreamIdle: {
		triggerConnect: {next: StreamConnecting, action: actionDial},
	},
	StreamConnecting: {
		triggerAccepted:   {next: StreamOpen, action: actionRead},
		triggerNotAllowed: {next: StreamIdle, action: actionRelease},
		triggerConflict:   {next: StreamIdle, action: actionYield},
		triggerEnded:      {next: StreamIdle, action: actionRetry},
	},
	StreamOpen: {
		triggerEnded: {next: StreamIdle, action: actionRetry},
	},
}

type streamResponse struct {
	gen       int
	status    int
	sessionID string
}

type streamPayload struct {
	data []byte
}

type streamClosed struct {
	gen int
	err error
}

type streamReconnect struct{}

// connectStream starts the notification stream once per session.
func (s *Service) connectStream(ctx context.Context) {
	if s.session.ID() == "" || s.session.StreamActive() || s.shuttingDown {
		return
	}
	s.fireStream(ctx, triggerConnect, nil)
}

func (s *Service) fireStream(ctx context.Context, trigger streamTrigger, cause error) {
	transition, ok := streamTransitions[s.streamState][trigger]
	if !ok {
		s.logger.Debug().Str("state", s.streamState.String()).Str("trigger", trigger.String()).Msg("ignored stream event")
		return
	}
	s.streamState = transition.next
	switch transition.action {
	case actionDial:
		s.session.SetStreamActive(true)
		s.streamGen++
		streamCtx, cancel := context.WithCancel(ctx)
		s.streamCancel = cancel
		go s.openStream(streamCtx, s.streamGen, s.session.ID())
	case actionRead:
		metrics.RecordStreamConnect("ok")
		s.logger.Debug().Msg("notification stream open")
	case actionRelease:
		s.stopStream()
		s.session.SetStreamActive(false)
		metrics.RecordStreamConnect("not_allowed")
		s.logger.Info().Msg("remote server does not support the notification stream (405)")
	case actionYield:
		s.stopStream()
		metrics.RecordStreamConnect("conflict")
		s.logger.Warn().Msg("notification stream already open for this session (409)")
	case actionRetry:
		s.stopStream()
		s.session.SetStreamActive(false)
		if s.shuttingDown {
			return
		}
		metrics.RecordStreamConnect("closed")
		metrics.RecordReconnect()
		event := s.logger.Warn()
		if cause != nil {
			event = event.Err(cause)
		}
		event.Dur("delay", s.reconnectDelay).Msg("notification stream closed, reconnecting")
		time.AfterFunc(s.reconnectDelay, func() {
			s.emit(ctx, streamReconnect{})
		})
	}
}

func (s *Service) stopStream() {
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
}

func (s *Service) onStreamResponse(ctx context.Context, ev streamResponse) {
	if ev.gen != s.streamGen {
		return
	}
	s.captureSession(ev.sessionID)
	switch ev.status {
	case http.StatusOK:
		s.fireStream(ctx, triggerAccepted, nil)
	case http.StatusMethodNotAllowed:
		s.fireStream(ctx, triggerNotAllowed, nil)
	case http.StatusConflict:
		s.fireStream(ctx, triggerConflict, nil)
	default:
		s.fireStream(ctx, triggerEnded, fmt.Errorf("unexpected status %d", ev.status))
	}
}

func (s *Service) onStreamClosed(ctx context.Context, ev streamClosed) {
	if ev.gen != s.streamGen {
		return
	}
	s.fireStream(ctx, triggerEnded, ev.err)
}

func (s *Service) onStreamReconnect(ctx context.Context) {
	if s.shuttingDown {
		return
	}
	s.connectStream(ctx)
}

// openStream runs on its own goroutine and reports through events only.
func (s *Service) openStream(ctx context.Context, gen int, sessionID string) {
	resp, err := s.transport.Stream(ctx, sessionID)
	if err != nil {
		s.emit(ctx, streamClosed{gen: gen, err: err})
		return
	}
	if !s.emit(ctx, streamResponse{gen: gen, status: resp.StatusCode, sessionID: transport.SessionID(resp)}) {
		_ = resp.Body.Close()
		return
	}
	if resp.StatusCode != http.StatusOK {
		transport.Drain(resp)
		return
	}
	defer resp.Body.Close()
	err = codec.ReadSSE(ctx, resp.Body, func(payload []byte) {
		s.emit(ctx, streamPayload{data: payload})
	})
	s.emit(ctx, streamClosed{gen: gen, err: err})
}
