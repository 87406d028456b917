// Package dirbridge wires the reconciliation engine to its adapters: the
// LDAP source reader, the cloud directory client and the record store. It
// is the embedding surface for the CLI and for programs driving
// reconciliation themselves, with event hooks and cron-driven scheduling.
package dirbridge

import (
	"context"
	"time"

	"github.com/dirbridge/dirbridge/internal/config"
	"github.com/dirbridge/dirbridge/internal/metrics"
	"github.com/dirbridge/dirbridge/internal/source/ldap"
	"github.com/dirbridge/dirbridge/internal/store/sqldb"
	"github.com/dirbridge/dirbridge/internal/target/graph"
	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/pattern"
	"github.com/dirbridge/dirbridge/pkg/reconcile"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/store"
)

// Dirbridge manages reconciliation runs with scheduling and event hooks.
type Dirbridge interface {
	// Engine exposes the underlying reconciliation engine for the
	// operator entry points (conflicts, resolve, retry).
	Engine() reconcile.Engine

	// Store exposes the record store for read-side commands.
	Store() store.Store

	// Sync triggers one full reconciliation run.
	Sync(ctx context.Context) (*reconcile.Result, error)

	// ScheduleOn starts cron-driven runs plus the daily retention prune.
	ScheduleOn(ctx context.Context) error

	// ScheduleOff stops the scheduler, waiting for a running job.
	ScheduleOff()

	// OnRunCompleted registers a callback fired after every completed run.
	OnRunCompleted(RunCompletedHook)

	// Metrics returns the Prometheus metric set fed by runs.
	Metrics() *metrics.Metrics

	// Close stops the scheduler and releases the store.
	Close() error
}

// dirbridge is the internal implementation of the Dirbridge interface.
type dirbridge struct {
	settings *settings
	cfg      *config.Config
	store    store.Store
	ownStore bool
	engine   reconcile.Engine
	metrics  *metrics.Metrics
	hooks    *hooks
	sched    *scheduler
}

// New creates a Dirbridge instance. A configuration is required, either
// via WithConfig or WithConfigFile; individual adapters can be replaced
// through options, which tests use to substitute fakes.
func New(opts ...Option) (Dirbridge, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cfg == nil {
		return nil, errors.NewConfigError("dirbridge", "no configuration given", nil)
	}

	d := &dirbridge{
		settings: s,
		cfg:      s.cfg,
		store:    s.store,
		metrics:  s.metrics,
		hooks:    newHooks(),
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}

	if d.store == nil {
		st, err := sqldb.Open(context.Background(), s.cfg.General.StoreDriver, s.cfg.General.StoreDSN)
		if err != nil {
			return nil, err
		}
		d.store = st
		d.ownStore = true
	}

	client := s.client
	if client == nil {
		var err error
		client, err = graph.New(context.Background(), graph.Config{
			TenantID:     s.cfg.Target.TenantID,
			ClientID:     s.cfg.Target.ClientID,
			ClientSecret: s.cfg.Target.ClientSecret,
			BaseURL:      s.cfg.Target.BaseURL,
		})
		if err != nil {
			d.closeStore()
			return nil, err
		}
	}

	readers := s.readers
	if readers == nil {
		readers = ldap.Factory(ldap.Config{
			URL:                s.cfg.Source.URL,
			BindDN:             s.cfg.Source.BindDN,
			BindPassword:       s.cfg.Source.BindPassword,
			InsecureSkipVerify: s.cfg.Source.InsecureSkipVerify,
			BinaryAttributes:   s.cfg.Source.BinaryAttributes,
		})
	}

	engine, err := reconcile.New(d.store, client, readers, d.engineOptions()...)
	if err != nil {
		d.closeStore()
		return nil, err
	}
	d.engine = engine
	d.sched = newScheduler(d)

	return d, nil
}

// engineOptions maps the configuration onto engine options, appending
// any extras given through WithEngineOptions.
func (d *dirbridge) engineOptions() []reconcile.Option {
	p := d.cfg.Patterns
	patterns := reconcile.Patterns{
		SourceImmutableID: p.SourceImmutableID,
		GivenName:         p.GivenName,
		Surname:           p.Surname,
		DisplayName:       p.DisplayName,
		MailNickname:      p.MailNickname,
		PrincipalName:     p.PrincipalName,
	}

	// The search requests exactly the attributes the patterns reference.
	attributes := pattern.Placeholders(
		p.SourceImmutableID, p.GivenName, p.Surname,
		p.DisplayName, p.MailNickname, p.PrincipalName,
	)

	opts := []reconcile.Option{
		reconcile.WithPatterns(patterns),
		reconcile.WithSearch(d.cfg.Source.SearchBase, d.cfg.Source.SearchFilter, attributes),
		reconcile.WithWorkers(d.cfg.General.Workers),
		reconcile.WithDeleteBehavior(d.cfg.DeleteBehavior()),
		reconcile.WithASCIIFold(d.cfg.General.FoldASCII),
	}
	if d.cfg.General.UsageLocation != "" {
		opts = append(opts, reconcile.WithUsageLocation(d.cfg.General.UsageLocation))
	}
	if len(d.cfg.General.LicenseSKUs) > 0 {
		opts = append(opts, reconcile.WithLicenseSKUs(d.cfg.General.LicenseSKUs))
	}
	return append(opts, d.settings.engineOpts...)
}

// Engine exposes the underlying reconciliation engine.
func (d *dirbridge) Engine() reconcile.Engine { return d.engine }

// Store exposes the record store.
func (d *dirbridge) Store() store.Store { return d.store }

// Metrics returns the Prometheus metric set.
func (d *dirbridge) Metrics() *metrics.Metrics { return d.metrics }

// OnRunCompleted registers a callback fired after every completed run.
func (d *dirbridge) OnRunCompleted(fn RunCompletedHook) {
	d.hooks.addRunCompleted(fn)
}

// Sync triggers one full reconciliation run and feeds the observers.
func (d *dirbridge) Sync(ctx context.Context) (*reconcile.Result, error) {
	result, err := d.engine.Sync(ctx)
	if err != nil {
		d.metrics.ObserveRunError()
		return nil, err
	}

	d.metrics.ObserveRun(result)
	d.hooks.fireRunCompleted(result)
	return result, nil
}

// scheduledRun is the cron job body: import, and apply only when the
// import left pending work. An unchanged source costs no target traffic.
func (d *dirbridge) scheduledRun(ctx context.Context) {
	logger := logging.FromContext(ctx)

	importResult, err := d.engine.Import(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Scheduled import failed")
		d.metrics.ObserveRunError()
		return
	}
	if !importResult.HasChanges() {
		logger.Debug().Str("import", importResult.Summary()).Msg("No pending work, skipping apply")
		return
	}

	result, err := d.engine.Apply(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Scheduled apply failed")
		d.metrics.ObserveRunError()
		return
	}
	result.Import = importResult

	logger.Info().Str("run", result.Summary()).Msg("Scheduled run finished")
	d.metrics.ObserveRun(result)
	d.hooks.fireRunCompleted(result)
}

// pruneRuns removes run summaries older than the retention horizon.
func (d *dirbridge) pruneRuns(ctx context.Context) {
	logger := logging.FromContext(ctx)

	horizon := time.Now().AddDate(0, 0, -d.cfg.General.RetentionDays)
	pruned, err := d.store.PruneRuns(ctx, horizon)
	if err != nil {
		logger.Error().Err(err).Msg("Run retention prune failed")
		return
	}
	if pruned > 0 {
		logger.Info().Int("pruned", pruned).Time("horizon", horizon).Msg("Pruned old runs")
	}
}

// ScheduleOn starts cron-driven runs plus the daily retention prune.
func (d *dirbridge) ScheduleOn(ctx context.Context) error {
	return d.sched.start(ctx, d.cfg.General.CronExpression)
}

// ScheduleOff stops the scheduler, waiting for a running job.
func (d *dirbridge) ScheduleOff() {
	d.sched.stop()
}

// Close stops the scheduler and releases the store if this instance
// opened it.
func (d *dirbridge) Close() error {
	d.sched.stop()
	return d.closeStore()
}

func (d *dirbridge) closeStore() error {
	if d.store == nil || !d.ownStore {
		return nil
	}
	return d.store.Close()
}

// ParseStrategy re-exports the conflict strategy parser so embedders do
// not need to import pkg/record for the single enum they pass in.
func ParseStrategy(s string) (record.Strategy, error) {
	return record.ParseStrategy(s)
}
