package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/engine"
	"github.com/roach88/shopsync/internal/metrics"
	"github.com/roach88/shopsync/internal/remote"
	"github.com/roach88/shopsync/internal/store"
	"github.com/roach88/shopsync/internal/syncer"
)

// flushTimeout bounds how long Close waits for in-flight cache writes.
const flushTimeout = 10 * time.Second

// Session wires one container, cache and orchestrator from configuration.
type Session struct {
	Container    *engine.Container
	Orchestrator *syncer.Orchestrator
	Cache        *store.Cache
	Registry     *prometheus.Registry

	logger *slog.Logger
}

func openSession(opts *RootOptions) (*Session, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cache, err := openCache(opts.Config, opts.Logger, m)
	if err != nil {
		return nil, err
	}
	source, err := openSource(opts.Config, opts.Logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	container := engine.NewContainer(engine.InitialState(),
		engine.WithLogger(opts.Logger),
		engine.WithMetrics(m),
	)
	orch := syncer.New(container, cache, source,
		syncer.WithLogger(opts.Logger),
		syncer.WithMetrics(m),
	)
	return &Session{
		Container:    container,
		Orchestrator: orch,
		Cache:        cache,
		Registry:     reg,
		logger:       opts.Logger.With("session", orch.Session()),
	}, nil
}

// Start mounts the orchestrator and waits until every domain is hydrated.
func (s *Session) Start(ctx context.Context) error {
	s.Orchestrator.Mount(ctx)
	if err := s.Orchestrator.Hydrated(ctx); err != nil {
		return fmt.Errorf("waiting for hydration: %w", err)
	}
	return nil
}

// Close flushes pending cache writes, stops mirroring and closes the cache.
// A flush timeout is logged; the session is still torn down.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	werr := s.Orchestrator.Wait(ctx)
	if werr != nil {
		s.logger.Warn("cache writes still pending at exit", "error", werr)
	}
	s.Orchestrator.Close()
	return errors.Join(werr, s.Cache.Close())
}

func openCache(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*store.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.Cache.Path, store.WithLogger(logger), store.WithMetrics(m)), nil
	case config.BackendRedis:
		backend, err := store.NewRedisBackend(store.RedisOptions{
			Addr:      cfg.Redis.Addr,
			URL:       cfg.Redis.URL,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure redis cache", err)
		}
		return store.New(backend, store.WithLogger(logger), store.WithMetrics(m)), nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown cache backend %q", cfg.Cache.Backend))
}

func openSource(cfg *config.Config, logger *slog.Logger) (remote.Source, error) {
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		client, err := remote.NewClient(cfg.Remote.BaseURL,
			remote.WithTimeout(cfg.Remote.Timeout),
			remote.WithClientLogger(logger),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure remote", err)
		}
		return client, nil
	case config.RemoteFile:
		return remote.NewFileSource(cfg.Remote.File), nil
	case config.RemoteOffline:
		return remote.Offline{}, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown remote kind %q", cfg.Remote.Kind))
}

// metricSummary flattens counters and histogram counts into
// name{label="value"} keys.
func metricSummary(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[mf.GetName()+labels] = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[mf.GetName()+"_count"+labels] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
