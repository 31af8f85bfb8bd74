package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Header names and media types of the Streamable HTTP transport.
const (
	HeaderSessionID        = "Mcp-Session-Id"
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"

	acceptValue = ContentTypeJSON + ", " + ContentTypeEventStream
)

// ErrRequestTimeout is returned when a POST does not receive response headers
// within the configured request timeout.
var ErrRequestTimeout = errors.New("request timed out waiting for response")

// Kind classifies a remote response by status and content type.
type Kind int

const (
	KindUnexpected Kind = iota
	KindAccepted
	KindEventStream
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindEventStream:
		return "event-stream"
	case KindJSON:
		return "json"
	}
	return "unexpected"
}

// Client talks to a single remote endpoint.
type Client struct {
	endpoint       string
	httpClient     *http.Client
	requestTimeout time.Duration
	token          string
	tokenSource    oauth2.TokenSource
	headers        http.Header
	logger         zerolog.Logger
}

// Endpoint returns the remote URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Post sends body as one JSON-RPC message. The returned response body must be
// closed by the caller.
func (c *Client) Post(ctx context.Context, body []byte, sessionID string) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(ctx, http.MethodPost, bytes.NewReader(body), sessionID)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeJSON)

	var timedOut atomic.Bool
	var timer *time.Timer
	if c.requestTimeout > 0 {
		timer = time.AfterFunc(c.requestTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	resp, err := c.httpClient.Do(req)
	if timer != nil {
		timer.Stop()
	}
	if timedOut.Load() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, c.requestTimeout)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Stream opens the long-lived server-to-client GET stream. No timeout applies;
// cancel ctx to release it.
func (c *Client) Stream(ctx context.Context, sessionID string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, sessionID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	return c.httpClient.Do(req)
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader, sessionID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, body)
	if err != nil {
		return nil, err
	}
	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", acceptValue)
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	return req, nil
}

// Classify maps a response to the way its body has to be consumed.
func Classify(resp *http.Response) Kind {
	switch resp.StatusCode {
	case http.StatusAccepted:
		return KindAccepted
	case http.StatusOK:
		if IsEventStream(resp.Header.Get("Content-Type")) {
			return KindEventStream
		}
		return KindJSON
	}
	return KindUnexpected
}

// IsEventStream reports whether contentType denotes an SSE body.
func IsEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, ContentTypeEventStream)
	}
	return mediaType == ContentTypeEventStream
}

// SessionID returns the session identifier assigned by resp, if any.
func SessionID(resp *http.Response) string {
	return resp.Header.Get(HeaderSessionID)
}

// Drain discards the remaining body and closes it.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// New creates a client for endpoint.
func New(endpoint string, options ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: expected http(s)://host/path", endpoint)
	}
	ret := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		headers:    http.Header{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.tokenSource == nil && ret.token != "" {
		if expiry, ok := TokenExpiry(ret.token); ok && expiry.Before(time.Now()) {
			ret.logger.Warn().Time("expired", expiry).Msg("bearer token is expired; the remote server will likely reject requests")
		}
		ret.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: ret.token, TokenType: "Bearer"})
	}
	if ret.tokenSource != nil {
		client := *ret.httpClient
		client.Transport = &oauth2.Transport{
			Source: ret.tokenSource,
			Base:   ret.httpClient.Transport,
		}
		ret.httpClient = &client
	}
	return ret, nil
}

// StatusError reports a POST response with a status other than 200 or 202.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
