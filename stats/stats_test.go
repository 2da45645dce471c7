package stats_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bspgraph/bspgraph/stats"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	stats.Default = nil
	// must not panic with no Registry installed.
	stats.ObserveChannelFlush(7, 128)
	stats.SetMailboxQueueDepth(7, 3)
	stats.ObserveAggregatorSync(time.Millisecond)
}

func TestMetricsEndpointReportsObservations(t *testing.T) {
	reg := stats.Init("worker", 5)
	defer func() { stats.Default = nil }()

	stats.ObserveChannelFlush(7, 256)
	stats.SetMailboxQueueDepth(7, 4)
	stats.ObserveAggregatorSync(10 * time.Millisecond)

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	body := sb.String()

	for _, want := range []string{
		"bspgraph_channel_flush_bytes_total",
		"bspgraph_mailbox_queue_depth",
		"bspgraph_aggregator_sync_seconds",
		`worker_id="5"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
