// Package metrics holds the Prometheus collectors of the bridge.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Payload sources.
const (
	SourceResponse = "response"
	SourceStream   = "stream"
	SourceFailure  = "failure"
)

var (
	messagesForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_bridge_messages_forwarded_total",
			Help: "Local messages posted to the remote endpoint",
		},
	)

	messagesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_bridge_messages_queued_total",
			Help: "Local messages deferred while the bootstrap request was outstanding",
		},
	)

	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_bridge_messages_dropped_total",
			Help: "Local or remote messages that could not be delivered",
		},
		[]string{"reason"},
	)

	payloadsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_bridge_payloads_written_total",
			Help: "Messages written to local output",
		},
		[]string{"source"},
	)

	postFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_bridge_post_failures_total",
			Help: "POST exchanges that failed",
		},
		[]string{"reason"},
	)

	streamConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_bridge_stream_connects_total",
			Help: "Notification stream connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	reconnectsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_bridge_stream_reconnects_scheduled_total",
			Help: "Notification stream reconnects scheduled",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(messagesForwarded, messagesQueued, messagesDropped, payloadsWritten, postFailures, streamConnects, reconnectsScheduled)
}

// RecordForwarded increments the forwarded message counter.
func RecordForwarded() {
	messagesForwarded.Inc()
}

// RecordQueued increments the deferred message counter.
func RecordQueued() {
	messagesQueued.Inc()
}

// RecordDropped increments the dropped message counter for reason.
func RecordDropped(reason string) {
	messagesDropped.WithLabelValues(reason).Inc()
}

// RecordPayload increments the written payload counter for source.
func RecordPayload(source string) {
	payloadsWritten.WithLabelValues(source).Inc()
}

// RecordPostFailure increments the POST failure counter for reason.
func RecordPostFailure(reason string) {
	postFailures.WithLabelValues(reason).Inc()
}

// RecordStreamConnect increments the stream connect counter for outcome.
func RecordStreamConnect(outcome string) {
	streamConnects.WithLabelValues(outcome).Inc()
}

// RecordReconnect increments the scheduled reconnect counter.
func RecordReconnect() {
	reconnectsScheduled.Inc()
}

// StartServer exposes the gatherer on /metrics at addr and shuts the server
// down when ctx is done. It returns the resolved listen address.
func StartServer(ctx context.Context, addr string, reg prometheus.Gatherer) (string, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String(), nil
}
