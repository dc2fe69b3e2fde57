package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaorak/affiliate-hub/internal/alerting"
	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/fx"
	"github.com/zaorak/affiliate-hub/internal/network"
	"github.com/zaorak/affiliate-hub/internal/scheduler"
	"github.com/zaorak/affiliate-hub/internal/service"
	"github.com/zaorak/affiliate-hub/internal/storage"
	"github.com/zaorak/affiliate-hub/internal/watch"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	throttle *alerting.Throttle
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		throttle: alerting.NewThrottle(),
	}
}

func (a *App) newFXClient() *fx.Client {
	return fx.NewClient(a.Config.FX.BaseURL, a.Config.FX.RequestTimeout, a.Logger)
}

func (a *App) newAdapters() service.Adapters {
	fxc := a.newFXClient()
	nets := a.Config.Networks
	return service.Adapters{
		AWIN:          network.NewAWIN(nets, fxc, a.Logger),
		Addrevenue:    network.NewAddrevenue(nets, fxc, a.Logger),
		Impact:        network.NewImpact(nets, fxc, a.Logger),
		Partnerize:    network.NewPartnerize(nets, fxc, a.Logger),
		TwoPerformant: network.NewTwoPerformant(nets, fxc, a.Logger),
		Dognet:        network.NewDognet(nets, fxc, a.Logger),
	}
}

func (a *App) newMailer() alerting.Mailer {
	return alerting.NewSMTPMailer(a.Config.Alerts.SMTP, a.Logger)
}

// newEngine wires the programme diff engine against AWIN, the one
// network the change watcher tracks.
func (a *App) newEngine(adapters service.Adapters, store *storage.Store) *watch.Engine {
	if store == nil {
		return nil
	}
	return watch.NewEngine(adapters.AWIN, store, store, a.newMailer(), a.throttle, a.Config.Alerts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	adapters := a.newAdapters()
	engine := a.newEngine(adapters, store)

	var earnings storage.EarningsStore
	var locker storage.AdvisoryLocker
	if store != nil {
		earnings = store
		locker = store
	}

	return service.New(a.Config, sched, adapters, engine, earnings, locker, a.Logger)
}

// Run executes the long-running snapshot and alert service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence and alerting disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting snapshot service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("snapshot service stopped")
	return nil
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ProgrammesOptions configure the programmes command.
type ProgrammesOptions struct {
	Network string
	Country string
	Feeds   bool
}

// SnapshotOptions configure a one-off snapshot run.
type SnapshotOptions struct {
	DryRun bool
	Days   int
}
