// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatEventsReceived   *prometheus.CounterVec // label: event
	ChatEntriesEmitted   *prometheus.CounterVec // label: kind
	ChatEntriesPurged    prometheus.Counter
	ChatEventsSuppressed *prometheus.CounterVec // label: event
	ChatFetchFailures    *prometheus.CounterVec // label: fetcher
	ChatSessionFailures  *prometheus.CounterVec // label: class
	ChatReconnects       prometheus.Counter
	ChatStreamDropped    prometheus.Counter

	// Histograms (seconds)
	ChatFetchDuration *prometheus.HistogramVec // label: fetcher

	// Gauges
	ChatConnectionStatus prometheus.Gauge // 0=disconnected 1=connecting 2=connected 3=logon 4=reconnecting
	ChatChattersGauge    prometheus.Gauge
	ChatSubscribersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_events_received_total", Help: "Transport events received, by event"}, []string{"event"})
		ChatEntriesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_entries_emitted_total", Help: "Log entries emitted, by kind"}, []string{"kind"})
		ChatEntriesPurged = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_entries_purged_total", Help: "Log entries removed after a ban, timeout or deletion"})
		ChatEventsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_events_suppressed_total", Help: "Events deliberately dropped, by event"}, []string{"event"})
		ChatFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_fetch_failures_total", Help: "Supplementary metadata fetch failures, by fetcher"}, []string{"fetcher"})
		ChatSessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_session_failures_total", Help: "Session failures, by class"}, []string{"class"})
		ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Link level reconnect attempts"})
		ChatStreamDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_stream_updates_dropped_total", Help: "Updates dropped for slow stream subscribers"})
		ChatFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chat_fetch_duration_seconds", Help: "Supplementary metadata fetch duration seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}}, []string{"fetcher"})
		ChatConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connection_status", Help: "Connection status 0=disconnected 1=connecting 2=connected 3=logon 4=reconnecting"})
		ChatChattersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_chatters", Help: "Distinct chatters seen this session"})
		ChatSubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_stream_subscribers", Help: "Open SSE and WebSocket stream subscribers"})
	})
}

// IncEvent counts a received transport event.
func IncEvent(event string) {
	if ChatEventsReceived != nil {
		ChatEventsReceived.WithLabelValues(event).Inc()
	}
}

// IncEntry counts an emitted log entry.
func IncEntry(kind string) {
	if ChatEntriesEmitted != nil {
		ChatEntriesEmitted.WithLabelValues(kind).Inc()
	}
}

// AddPurged counts purged log entries.
func AddPurged(n int) {
	if ChatEntriesPurged != nil && n > 0 {
		ChatEntriesPurged.Add(float64(n))
	}
}

// IncSuppressed counts a dropped event.
func IncSuppressed(event string) {
	if ChatEventsSuppressed != nil {
		ChatEventsSuppressed.WithLabelValues(event).Inc()
	}
}

// IncFetchFailure counts a failed metadata fetch.
func IncFetchFailure(fetcher string) {
	if ChatFetchFailures != nil {
		ChatFetchFailures.WithLabelValues(fetcher).Inc()
	}
}

// IncSessionFailure counts a session failure of the given class.
func IncSessionFailure(class string) {
	if ChatSessionFailures != nil {
		ChatSessionFailures.WithLabelValues(class).Inc()
	}
}

// IncReconnect counts a link re-dial.
func IncReconnect() {
	if ChatReconnects != nil {
		ChatReconnects.Inc()
	}
}

// IncStreamDropped counts an update not delivered to a slow subscriber.
func IncStreamDropped() {
	if ChatStreamDropped != nil {
		ChatStreamDropped.Inc()
	}
}

// SetConnectionStatus records the numeric connection status.
func SetConnectionStatus(status int) {
	if ChatConnectionStatus != nil {
		ChatConnectionStatus.Set(float64(status))
	}
}

// SetChatters records the number of distinct chatters.
func SetChatters(n int) {
	if ChatChattersGauge != nil {
		ChatChattersGauge.Set(float64(n))
	}
}

// AddStreamSubscribers adjusts the open stream subscriber gauge by delta.
func AddStreamSubscribers(delta int) {
	if ChatSubscribersGauge != nil {
		ChatSubscribersGauge.Add(float64(delta))
	}
}

// ObserveFetch records the duration of a metadata fetch.
func ObserveFetch(fetcher string, d time.Duration) {
	if ChatFetchDuration != nil {
		ChatFetchDuration.WithLabelValues(fetcher).Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
