package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"chanlun/internal/config"
	"chanlun/internal/engine"
	"chanlun/internal/ledger"
	"chanlun/internal/metrics"
	"chanlun/internal/sink"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// sinkTimeout bounds one envelope's delivery to one sink.
const sinkTimeout = 10 * time.Second

// pipelineOptions selects the outputs of a run beyond the terminal.
type pipelineOptions struct {
	// Store persists events into the SQLite event table when non-nil.
	Store store.DataStore
	// NoSinks skips the configured ledger and Kafka sinks.
	NoSinks bool
}

// pipeline connects chains to the hub, its sink consumers and metrics.
type pipeline struct {
	hub       *stream.Hub
	sinks     sink.Multi
	consumers []*sink.Consumer
	guards    []*sink.Guarded
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	cancel   context.CancelFunc
	serveErr chan error
}

func newPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts pipelineOptions) (*pipeline, error) {
	p := &pipeline{hub: stream.NewHub(), logger: logger}

	if opts.Store != nil {
		p.sinks = append(p.sinks, sink.NewStoreSink(opts.Store))
	}
	if !opts.NoSinks && cfg.Ledger.Enabled {
		l, err := ledger.New(ledger.Config{
			Path:       cfg.Ledger.Path,
			MaxSize:    cfg.Ledger.MaxSize,
			MaxBackups: cfg.Ledger.MaxBackups,
			MaxAge:     cfg.Ledger.MaxAge,
			Compress:   cfg.Ledger.Compress,
		}, logger)
		if err != nil {
			return nil, err
		}
		p.sinks = append(p.sinks, sink.NewLedgerSink(l))
	}
	if !opts.NoSinks && cfg.Kafka.Enabled {
		k, err := sink.NewKafkaSink(sink.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			BatchTimeout: time.Duration(cfg.Kafka.BatchTimeout) * time.Millisecond,
		})
		if err != nil {
			_ = p.sinks.Close()
			return nil, err
		}
		g := sink.NewGuarded(k, sink.DefaultGuardConfig())
		p.guards = append(p.guards, g)
		p.sinks = append(p.sinks, g)
	}
	for _, s := range p.sinks {
		c := sink.NewConsumer(s, sinkTimeout, logger)
		p.consumers = append(p.consumers, c)
		p.hub.RegisterConsumer(c)
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		m, err := metrics.New(cfg.Metrics.Namespace, reg)
		if err != nil {
			_ = p.sinks.Close()
			return nil, err
		}
		p.metrics = m

		serveCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		p.serveErr = make(chan error, 1)
		go func() { p.serveErr <- metrics.Serve(serveCtx, cfg.Metrics.Listen, reg) }()
		logger.Info().Str("listen", cfg.Metrics.Listen).Msg("Serving metrics")
	}

	p.hub.Start(ctx)
	return p, nil
}

// observer returns the chain observer for one stream.
func (p *pipeline) observer(id stream.Identity, label string) engine.Observer {
	obs := engine.Observers{stream.NewWaitingPublisher(p.hub, id)}
	if p.metrics != nil {
		obs = append(obs, p.metrics.Observer(label))
	}
	return obs
}

// failures sums failed publishes over every sink.
func (p *pipeline) failures() int {
	n := 0
	for _, c := range p.consumers {
		n += c.Failures()
	}
	return n
}

// Close flushes the hub, then closes the sinks and the metrics listener.
func (p *pipeline) Close() error {
	p.hub.Stop()
	hm := p.hub.Metrics()
	if p.metrics != nil {
		p.metrics.ObserveHub(hm)
	}
	for _, g := range p.guards {
		st := g.Stats()
		p.logger.Debug().
			Str("sink", g.Name()).
			Str("circuit", string(st.State)).
			Int64("published", st.Published).
			Int64("retries", st.Retries).
			Int64("failed", st.Failed).
			Int64("rejected", st.Rejected).
			Msg("Sink stats")
	}
	p.logger.Debug().
		Uint64("received", hm.Received).
		Uint64("dropped", hm.Dropped).
		Int("sink_failures", p.failures()).
		Msg("Pipeline closed")

	err := p.sinks.Close()
	if p.cancel != nil {
		p.cancel()
		if serr := <-p.serveErr; serr != nil && err == nil {
			err = fmt.Errorf("metrics server: %w", serr)
		}
	}
	return err
}
