package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/network"
	"github.com/zaorak/affiliate-hub/internal/scheduler"
	"github.com/zaorak/affiliate-hub/internal/storage"
	"github.com/zaorak/affiliate-hub/internal/watch"
)

// Adapters groups the concrete network adapters. Feed and tracking link
// resolution differs structurally per network, so the service keeps the
// concrete types rather than a flat interface list.
type Adapters struct {
	AWIN          *network.AWIN
	Addrevenue    *network.Addrevenue
	Impact        *network.Impact
	Partnerize    *network.Partnerize
	TwoPerformant *network.TwoPerformant
	Dognet        *network.Dognet
}

// Fetchers returns the commission fetchers for the enabled network names,
// preserving the configured order.
func (a Adapters) Fetchers(enabled []string) []network.Fetcher {
	byName := map[string]network.Fetcher{}
	if a.AWIN != nil {
		byName[a.AWIN.Name()] = a.AWIN
	}
	if a.Addrevenue != nil {
		byName[a.Addrevenue.Name()] = a.Addrevenue
	}
	if a.Impact != nil {
		byName[a.Impact.Name()] = a.Impact
	}
	if a.Partnerize != nil {
		byName[a.Partnerize.Name()] = a.Partnerize
	}
	if a.TwoPerformant != nil {
		byName[a.TwoPerformant.Name()] = a.TwoPerformant
	}
	if a.Dognet != nil {
		byName[a.Dognet.Name()] = a.Dognet
	}

	out := make([]network.Fetcher, 0, len(enabled))
	for _, name := range enabled {
		if f, ok := byName[name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Overview is the cross-network aggregation the dashboard and the
// scheduled job both consume.
type Overview struct {
	Query     network.Query
	Snapshots []network.CommissionSnapshot
	Total     decimal.Decimal
	Confirmed decimal.Decimal
	Pending   decimal.Decimal
	Currency  string
	Warnings  []string
}

// ProgrammeView is one programme prepared for display: the raw
// relationship plus resolved feed URLs and a tracking link when the
// network can provide them.
type ProgrammeView struct {
	Programme   network.Programme
	Feeds       []string
	TrackingURL string
}

// Service orchestrates commission aggregation, snapshot persistence and
// programme change alerting.
type Service struct {
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	adapters  Adapters
	fetchers  []network.Fetcher
	engine    *watch.Engine
	earnings  storage.EarningsStore
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// New constructs the aggregation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, adapters Adapters, engine *watch.Engine, earnings storage.EarningsStore, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		scheduler: sched,
		adapters:  adapters,
		fetchers:  adapters.Fetchers(cfg.Display.Networks),
		engine:    engine,
		earnings:  earnings,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled snapshot loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// BuildQuery derives the default window and filters from configuration.
func (s *Service) BuildQuery(now time.Time) network.Query {
	end := now.UTC()
	start := end.AddDate(0, 0, -s.cfg.Display.DaysBack)

	match := network.MatchExact
	if s.cfg.Display.SubIDContains {
		match = network.MatchContains
	}

	return network.Query{
		Start:     start,
		End:       end,
		SubIDs:    s.cfg.Display.SubIDs,
		Match:     match,
		Currency:  s.cfg.Display.Currency,
		Countries: s.cfg.Countries(),
	}
}

// Overview fetches commission snapshots from every enabled network and
// sums them into grand totals. A single network's transport failure
// surfaces as a zeroed snapshot with a warning; a ConfigurationError
// aborts, because the operator must fix the request.
func (s *Service) Overview(ctx context.Context, q network.Query) (Overview, error) {
	out := Overview{Query: q, Currency: q.Currency}

	for _, f := range s.fetchers {
		snap, err := f.Commissions(ctx, q)
		if err != nil {
			return Overview{}, fmt.Errorf("%s commissions: %w", f.Name(), err)
		}
		if snap.Meta.Reason != "" {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", f.Name(), snap.Meta.Reason))
		}
		out.Snapshots = append(out.Snapshots, snap)
		out.Total = out.Total.Add(snap.Total)
		out.Confirmed = out.Confirmed.Add(snap.Confirmed)
		out.Pending = out.Pending.Add(snap.Pending)
	}
	return out, nil
}

// ProcessBucket 执行单次快照任务: 聚合、落库、再跑一轮同步告警。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	q := s.BuildQuery(bucket)

	overview, err := s.Overview(ctx, q)
	if err != nil {
		return err
	}

	runID := uuid.New()
	if err := s.persistSnapshot(ctx, runID, bucket, overview); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist snapshot")
	}

	s.logger.Info().
		Time("bucket", bucket).
		Str("run_id", runID.String()).
		Str("total", overview.Total.String()).
		Str("confirmed", overview.Confirmed.String()).
		Str("pending", overview.Pending.String()).
		Strs("warnings", overview.Warnings).
		Msg("snapshot recorded")

	s.SyncAll(ctx)
	return nil
}

func (s *Service) persistSnapshot(ctx context.Context, runID uuid.UUID, bucket time.Time, overview Overview) error {
	rows := snapshotRows(runID, bucket, overview)

	if s.earnings != nil {
		if err := s.earnings.InsertEarnings(ctx, rows); err != nil {
			return err
		}
	}
	if path := s.cfg.Export.SnapshotCSV; path != "" {
		if err := appendSnapshotCSV(path, rows); err != nil {
			return fmt.Errorf("append snapshot csv: %w", err)
		}
	}
	return nil
}

func snapshotRows(runID uuid.UUID, bucket time.Time, overview Overview) []storage.EarningsRow {
	rows := make([]storage.EarningsRow, 0, len(overview.Snapshots))
	for _, snap := range overview.Snapshots {
		rows = append(rows, storage.EarningsRow{
			RunID:          runID,
			RunAt:          bucket.UTC(),
			Network:        snap.Network,
			WindowStart:    overview.Query.Start,
			WindowEnd:      overview.Query.End,
			Countries:      overview.Query.Countries,
			SubIDs:         overview.Query.SubIDs,
			SubIDContains:  overview.Query.Match == network.MatchContains,
			Currency:       snap.Currency,
			SourceCurrency: snap.SourceCurrency,
			FXRate:         snap.FXRate,
			Total:          snap.Total,
			Confirmed:      snap.Confirmed,
			Pending:        snap.Pending,
			RawRows:        snap.Meta.RawCount,
			FilteredRows:   snap.Meta.FilteredCount,
			Reason:         snap.Meta.Reason,
		})
	}
	return rows
}

// SyncAll runs the programme diff and alert cycle for every configured
// country. Per-country failures are logged, not propagated, so one
// country never blocks the rest.
func (s *Service) SyncAll(ctx context.Context) {
	if s.engine == nil {
		return
	}
	for _, country := range s.cfg.Countries() {
		if _, err := s.engine.Sync(ctx, country); err != nil {
			s.logger.Error().Err(err).Str("country", country).Msg("programme sync failed")
		}
	}
}

// SyncCountry runs one diff and alert cycle for a single country. It
// takes the same advisory lock as the scheduled bucket, so a manual sync
// never interleaves its read-diff-write with a running snapshot job.
func (s *Service) SyncCountry(ctx context.Context, country string) (watch.Result, error) {
	if s.engine == nil {
		return watch.Result{}, fmt.Errorf("alert engine not configured")
	}
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return watch.Result{}, err
	}
	if !proceed {
		return watch.Result{}, fmt.Errorf("advisory lock held elsewhere, another sync is running")
	}
	if unlock != nil {
		defer unlock()
	}
	return s.engine.Sync(ctx, country)
}

// ProgrammesForDisplay lists one network's programmes for a country and
// resolves feed URLs plus a tracking link where the network supports it.
// Feed resolution is best effort; a resolver failure leaves the feed
// list empty rather than dropping the programme.
func (s *Service) ProgrammesForDisplay(ctx context.Context, networkName, country string) ([]ProgrammeView, error) {
	fetcher := s.programmeFetcher(networkName)
	if fetcher == nil {
		return nil, fmt.Errorf("unknown network %q", networkName)
	}

	programmes, err := fetcher.Programmes(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("%s programmes: %w", networkName, err)
	}

	views := make([]ProgrammeView, 0, len(programmes))
	var trackingLinks map[string]string
	if networkName == "addrevenue" && s.adapters.Addrevenue != nil {
		if links, linkErr := s.adapters.Addrevenue.TrackingLinks(ctx); linkErr == nil {
			trackingLinks = links
		}
	}

	for _, prog := range programmes {
		view := ProgrammeView{Programme: prog}

		switch networkName {
		case "awin":
			if id, parseErr := strconv.ParseInt(prog.AdvertiserID, 10, 64); parseErr == nil {
				view.Feeds = s.adapters.AWIN.FeedsFor(ctx, id, country)
				view.TrackingURL = s.adapters.AWIN.TrackingLink(id, "", "")
			}
		case "impact":
			if feeds, feedErr := s.adapters.Impact.FeedsFor(ctx, prog.AdvertiserID); feedErr == nil {
				view.Feeds = feeds
			}
		case "partnerize":
			if feeds, feedErr := s.adapters.Partnerize.FeedsFor(ctx, prog.AdvertiserID); feedErr == nil {
				view.Feeds = feeds
			}
		case "addrevenue":
			if feeds, feedErr := s.adapters.Addrevenue.FeedsFor(ctx, prog.AdvertiserID); feedErr == nil {
				view.Feeds = feeds
			}
			view.TrackingURL = trackingLinks[prog.AdvertiserID]
		}

		if view.Feeds == nil && prog.FeedURL != "" {
			view.Feeds = []string{prog.FeedURL}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) programmeFetcher(name string) network.ProgrammeFetcher {
	switch name {
	case "awin":
		if s.adapters.AWIN != nil {
			return s.adapters.AWIN
		}
	case "addrevenue":
		if s.adapters.Addrevenue != nil {
			return s.adapters.Addrevenue
		}
	case "impact":
		if s.adapters.Impact != nil {
			return s.adapters.Impact
		}
	case "partnerize":
		if s.adapters.Partnerize != nil {
			return s.adapters.Partnerize
		}
	case "2performant":
		if s.adapters.TwoPerformant != nil {
			return s.adapters.TwoPerformant
		}
	case "dognet":
		if s.adapters.Dognet != nil {
			return s.adapters.Dognet
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
