// Package stats exposes the core's runtime counters and gauges --
// per-channel flush volume, per-tag mailbox queue depth, aggregator sync
// latency -- as Prometheus metrics, adapted from target_stats.go's named,
// process-wide CoreStats registry down to the handful of numbers this
// runtime actually produces. Global package-level functions mirror
// cmn/nlog's own "init once, call from anywhere, no-op until initialized"
// shape rather than threading a Registry handle through every channel and
// aggregator call site.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is one process's metric set, labeled by its role (master,
// worker) and, for workers, their global id.
type Registry struct {
	channelFlushBytes *prometheus.CounterVec
	mailboxQueueDepth *prometheus.GaugeVec
	aggregatorSync    prometheus.Histogram
	mux               *http.ServeMux
}

// Default is the process-wide Registry every ObserveX/SetX call records
// into. nil until Init is called, in which case every call below is a
// no-op -- a process that never calls Init (a unit test, a library caller
// that doesn't want metrics) pays nothing for it.
var Default *Registry

// Init creates and installs Default, labeled by role ("master" or
// "worker") and, for workers, their global id.
func Init(role string, globalID int) *Registry {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"role": role}
	if role == "worker" {
		constLabels["worker_id"] = fmt.Sprintf("%d", globalID)
	}

	r := &Registry{
		channelFlushBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   "bspgraph",
			Subsystem:   "channel",
			Name:        "flush_bytes_total",
			Help:        "Bytes sent by Channel.Flush, by channel id.",
			ConstLabels: constLabels,
		}, []string{"channel_id"}),
		mailboxQueueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "bspgraph",
			Subsystem:   "mailbox",
			Name:        "queue_depth",
			Help:        "Pending payloads in a (channel_id, progress) mailbox cell.",
			ConstLabels: constLabels,
		}, []string{"channel_id"}),
		aggregatorSync: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace:   "bspgraph",
			Subsystem:   "aggregator",
			Name:        "sync_seconds",
			Help:        "Wall-clock duration of one Factory.Sync round.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	r.mux = http.NewServeMux()
	r.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	Default = r
	return r
}

// Handler serves /metrics for this process's Registry.
func (r *Registry) Handler() http.Handler { return r.mux }

// ObserveChannelFlush records one Channel.Flush call's outbound volume.
func ObserveChannelFlush(channelID uint32, nBytes int) {
	if Default == nil {
		return
	}
	label := prometheus.Labels{"channel_id": fmt.Sprintf("%d", channelID)}
	Default.channelFlushBytes.With(label).Add(float64(nBytes))
}

// SetMailboxQueueDepth records the current pending-payload count for a
// channel's mailbox cell.
func SetMailboxQueueDepth(channelID uint32, depth int) {
	if Default == nil {
		return
	}
	Default.mailboxQueueDepth.With(prometheus.Labels{"channel_id": fmt.Sprintf("%d", channelID)}).Set(float64(depth))
}

// ObserveAggregatorSync records one Factory.Sync round's duration.
func ObserveAggregatorSync(d time.Duration) {
	if Default == nil {
		return
	}
	Default.aggregatorSync.Observe(d.Seconds())
}
