package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()

	if ChatEventsReceived == nil || ChatEntriesEmitted == nil || ChatEntriesPurged == nil {
		t.Fatal("counters not initialized")
	}
	if ChatFetchDuration == nil {
		t.Fatal("fetch histogram not initialized")
	}
	if ChatConnectionStatus == nil || ChatChattersGauge == nil {
		t.Fatal("gauges not initialized")
	}
	// Second call must not panic on duplicate registration.
	Init()
}

func TestCounterHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(ChatEventsReceived.WithLabelValues("raid"))
	IncEvent("raid")
	IncEvent("raid")
	if got := testutil.ToFloat64(ChatEventsReceived.WithLabelValues("raid")); got != before+2 {
		t.Errorf("events_received{raid} = %v, want %v", got, before+2)
	}

	purged := testutil.ToFloat64(ChatEntriesPurged)
	AddPurged(3)
	AddPurged(0)
	if got := testutil.ToFloat64(ChatEntriesPurged); got != purged+3 {
		t.Errorf("entries_purged = %v, want %v", got, purged+3)
	}

	failures := testutil.ToFloat64(ChatFetchFailures.WithLabelValues("clips"))
	IncFetchFailure("clips")
	if got := testutil.ToFloat64(ChatFetchFailures.WithLabelValues("clips")); got != failures+1 {
		t.Errorf("fetch_failures{clips} = %v, want %v", got, failures+1)
	}
}

func TestGaugeHelpers(t *testing.T) {
	Init()

	for _, status := range []int{0, 1, 2, 3, 4} {
		SetConnectionStatus(status)
		if got := testutil.ToFloat64(ChatConnectionStatus); got != float64(status) {
			t.Errorf("connection_status = %v, want %d", got, status)
		}
	}

	SetChatters(42)
	if got := testutil.ToFloat64(ChatChattersGauge); got != 42 {
		t.Errorf("chatters = %v, want 42", got)
	}

	start := testutil.ToFloat64(ChatSubscribersGauge)
	AddStreamSubscribers(1)
	AddStreamSubscribers(-1)
	if got := testutil.ToFloat64(ChatSubscribersGauge); got != start {
		t.Errorf("stream_subscribers = %v, want %v", got, start)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
