// Package gwstats exposes the gateway's runtime counters through
// Prometheus, reading the bridge's atomic counters directly rather than
// having bridge import client_golang itself.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gwstats

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NVIDIA/radosdav/bridge"
	"github.com/NVIDIA/radosdav/cmn/nlog"
)

var (
	lateCallbacks = prometheus.NewDesc(
		"radosdav_bridge_late_callbacks_total",
		"AIO completions that arrived after their slot's generation advanced past them.",
		nil, nil)
	timeouts = prometheus.NewDesc(
		"radosdav_bridge_timeouts_total",
		"Await operations that returned because their context deadline expired first.",
		nil, nil)
	awaits = prometheus.NewDesc(
		"radosdav_bridge_awaits_total",
		"Total number of Slot.Do invocations across every mount.",
		nil, nil)
)

// bridgeCollector reads bridge's package-level counters on each scrape;
// it holds no state of its own.
type bridgeCollector struct{}

func (bridgeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- lateCallbacks
	ch <- timeouts
	ch <- awaits
}

func (bridgeCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(lateCallbacks, prometheus.CounterValue, float64(bridge.LateCallbacks()))
	ch <- prometheus.MustNewConstMetric(timeouts, prometheus.CounterValue, float64(bridge.Timeouts()))
	ch <- prometheus.MustNewConstMetric(awaits, prometheus.CounterValue, float64(bridge.Awaits()))
}

// RequestLatency tracks per-method dispatcher latency (dav package
// observes this directly; it needs no mount-specific labels since a
// gateway process typically serves one mount set).
var RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "radosdav_request_duration_seconds",
	Help:    "WebDAV request handling latency by method and status class.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "status_class"})

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(bridgeCollector{})
	registry.MustRegister(RequestLatency)
}

// Serve starts the metrics listener on addr and blocks until ctx is
// canceled, then shuts the listener down gracefully. A caller that
// never wants metrics should simply not call Serve.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux}
	nlog.Infof("gwstats: metrics listening on %s", addr)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
