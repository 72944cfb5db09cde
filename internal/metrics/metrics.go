// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chanlun/internal/engine"
	"chanlun/internal/stream"
)

// Metrics holds the collectors shared by every stream of a process.
type Metrics struct {
	bars       *prometheus.CounterVec
	events     *prometheus.CounterVec
	violations *prometheus.CounterVec
	recompute  *prometheus.HistogramVec
	strokes    *prometheus.GaugeVec
	levels     *prometheus.GaugeVec
	hubDropped prometheus.Gauge
}

// New creates the collectors under namespace and registers them on reg.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_total",
			Help:      "Bars processed per stream.",
		}, []string{"stream"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted per stream, layer and transition.",
		}, []string{"stream", "layer", "transition"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Invariant violations per stream and code.",
		}, []string{"stream", "code"}),
		recompute: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_seconds",
			Help:      "Per-bar recomputation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"stream"}),
		strokes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "strokes",
			Help:      "Strokes in the latest snapshot.",
		}, []string{"stream"}),
		levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "levels",
			Help:      "Depth of the level stack in the latest snapshot.",
		}, []string{"stream"}),
		hubDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_dropped_envelopes",
			Help:      "Envelopes dropped by the stream hub.",
		}),
	}

	for _, c := range []prometheus.Collector{m.bars, m.events, m.violations, m.recompute, m.strokes, m.levels, m.hubDropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveHub records the hub's drop counter.
func (m *Metrics) ObserveHub(h stream.HubMetrics) {
	m.hubDropped.Set(float64(h.Dropped))
}

// StreamObserver feeds one stream's snapshots into the shared collectors.
type StreamObserver struct {
	m      *Metrics
	stream string
}

// Observer returns an engine observer labelled with streamLabel.
func (m *Metrics) Observer(streamLabel string) *StreamObserver {
	return &StreamObserver{m: m, stream: streamLabel}
}

// ObserveBar implements engine.Observer.
func (o *StreamObserver) ObserveBar(snap *engine.Snapshot, elapsed time.Duration) {
	o.m.bars.WithLabelValues(o.stream).Inc()
	o.m.recompute.WithLabelValues(o.stream).Observe(elapsed.Seconds())
	o.m.strokes.WithLabelValues(o.stream).Set(float64(len(snap.Strokes)))
	o.m.levels.WithLabelValues(o.stream).Set(float64(len(snap.Levels)))

	for _, e := range snap.Events {
		o.m.events.WithLabelValues(o.stream, string(e.Layer), string(e.Transition)).Inc()
	}
	for _, v := range snap.Violations {
		o.m.violations.WithLabelValues(o.stream, string(v.Code)).Inc()
	}
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Label renders a stream label from its parts.
func Label(symbol, interval string, n int) string {
	if symbol == "" {
		return "stream-" + strconv.Itoa(n)
	}
	return symbol + "/" + interval
}
