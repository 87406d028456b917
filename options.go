package dirbridge

import (
	"github.com/dirbridge/dirbridge/internal/config"
	"github.com/dirbridge/dirbridge/internal/metrics"
	"github.com/dirbridge/dirbridge/pkg/reconcile"
	"github.com/dirbridge/dirbridge/pkg/store"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// Option is a function that configures a Dirbridge instance.
type Option func(*settings) error

// settings collects everything New assembles an instance from.
type settings struct {
	cfg        *config.Config
	store      store.Store
	client     target.Client
	readers    reconcile.ReaderFactory
	metrics    *metrics.Metrics
	engineOpts []reconcile.Option
}

func defaultSettings() *settings {
	return &settings{}
}

// WithConfig supplies an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) error {
		s.cfg = cfg
		return nil
	}
}

// WithConfigFile loads the configuration from path; an empty path
// searches the default locations.
func WithConfigFile(path string) Option {
	return func(s *settings) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		s.cfg = cfg
		return nil
	}
}

// WithStore replaces the SQL record store. The caller keeps ownership;
// Close will not touch it.
func WithStore(st store.Store) Option {
	return func(s *settings) error {
		s.store = st
		return nil
	}
}

// WithTargetClient replaces the cloud directory client.
func WithTargetClient(client target.Client) Option {
	return func(s *settings) error {
		s.client = client
		return nil
	}
}

// WithReaderFactory replaces the source reader factory.
func WithReaderFactory(readers reconcile.ReaderFactory) Option {
	return func(s *settings) error {
		s.readers = readers
		return nil
	}
}

// WithMetrics supplies a pre-built metric set, shared with an embedding
// program's registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) error {
		s.metrics = m
		return nil
	}
}

// WithEngineOptions appends raw engine options on top of those derived
// from the configuration.
func WithEngineOptions(opts ...reconcile.Option) Option {
	return func(s *settings) error {
		s.engineOpts = append(s.engineOpts, opts...)
		return nil
	}
}
