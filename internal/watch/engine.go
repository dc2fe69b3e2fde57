package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaorak/affiliate-hub/internal/alerting"
	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/network"
	"github.com/zaorak/affiliate-hub/internal/storage"
)

// Event kinds written to the alert log.
const (
	EventNew         = "new"
	EventRemoved     = "removed"
	EventClosed      = "closed"
	EventFeedFailure = "feed_failure"
)

// closedStatuses 与 closingRelationships 定义触发 closed 告警的词表,
// 比较时大小写不敏感。
var (
	closedStatuses       = []string{"closed", "deactivated", "suspended"}
	closingRelationships = []string{"rejected", "suspended"}
)

// Result summarises one sync cycle for logging and tests.
type Result struct {
	Country     string
	New         int
	Removed     int
	Closed      int
	Unchanged   int
	FeedFailure bool
}

// Engine diffs freshly fetched programme lists against the stored state
// and dispatches alerts for membership transitions.
type Engine struct {
	fetcher  network.ProgrammeFetcher
	store    storage.ProgrammeStore
	auditLog storage.AlertLogStore
	mailer   alerting.Mailer
	throttle *alerting.Throttle
	cfg      config.AlertsConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine 构造告警引擎。throttle 注入进来而不是内部持有,
// 便于跨引擎复用同一冷却状态。
func NewEngine(
	fetcher network.ProgrammeFetcher,
	store storage.ProgrammeStore,
	auditLog storage.AlertLogStore,
	mailer alerting.Mailer,
	throttle *alerting.Throttle,
	cfg config.AlertsConfig,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		fetcher:  fetcher,
		store:    store,
		auditLog: auditLog,
		mailer:   mailer,
		throttle: throttle,
		cfg:      cfg,
		logger:   logger.With().Str("component", "watch_engine").Str("network", fetcher.Name()).Logger(),
		now:      time.Now,
	}
}

// Sync fetches the current programme list for one country, applies the
// diff against the stored state and dispatches alerts. A fetch failure
// takes the feed_failure path and never touches the state store.
func (e *Engine) Sync(ctx context.Context, country string) (Result, error) {
	result := Result{Country: country}

	current, err := e.fetcher.Programmes(ctx, country)
	if err != nil {
		result.FeedFailure = true
		e.handleFeedFailure(ctx, country, err)
		return result, nil
	}

	previous, err := e.store.ListProgrammes(ctx, e.fetcher.Name(), country)
	if err != nil {
		return result, fmt.Errorf("load previous state: %w", err)
	}

	now := e.now().UTC()
	currentByID := make(map[string]network.Programme, len(current))
	for _, prog := range current {
		id := strings.TrimSpace(prog.AdvertiserID)
		if id == "" {
			continue
		}
		if _, seen := currentByID[id]; !seen {
			currentByID[id] = prog
		}
	}

	var (
		upserts  []storage.ProgrammeRecord
		removals []string
		events   []alertEvent
	)

	for id, prog := range currentByID {
		prev, known := previous[id]
		if !known {
			upserts = append(upserts, storage.ProgrammeRecord{
				Network:      e.fetcher.Name(),
				AdvertiserID: id,
				Country:      country,
				Name:         prog.Name,
				Status:       prog.Status,
				Relationship: prog.Relationship,
				FirstSeen:    now,
				LastSeen:     now,
			})
			result.New++
			events = append(events, alertEvent{
				kind:         EventNew,
				advertiserID: id,
				name:         prog.Name,
				details:      fmt.Sprintf("status=%s relationship=%s", prog.Status, prog.Relationship),
			})
			continue
		}

		if prev.Status == prog.Status && prev.Relationship == prog.Relationship {
			result.Unchanged++
			continue
		}

		upserts = append(upserts, storage.ProgrammeRecord{
			Network:      e.fetcher.Name(),
			AdvertiserID: id,
			Country:      country,
			Name:         prog.Name,
			Status:       prog.Status,
			Relationship: prog.Relationship,
			FirstSeen:    prev.FirstSeen,
			LastSeen:     now,
		})
		if containsFold(closedStatuses, prog.Status) || containsFold(closingRelationships, prog.Relationship) {
			result.Closed++
			events = append(events, alertEvent{
				kind:         EventClosed,
				advertiserID: id,
				name:         prog.Name,
				details: fmt.Sprintf("status %s -> %s, relationship %s -> %s",
					prev.Status, prog.Status, prev.Relationship, prog.Relationship),
			})
		}
	}

	for id, prev := range previous {
		if _, stillPresent := currentByID[id]; stillPresent {
			continue
		}
		removals = append(removals, id)
		result.Removed++
		events = append(events, alertEvent{
			kind:         EventRemoved,
			advertiserID: id,
			name:         prev.Name,
			details:      fmt.Sprintf("last status=%s relationship=%s", prev.Status, prev.Relationship),
		})
	}

	if len(upserts) > 0 || len(removals) > 0 {
		if err := e.store.ApplyDiff(ctx, e.fetcher.Name(), country, upserts, removals); err != nil {
			return result, fmt.Errorf("apply diff: %w", err)
		}
	}

	for _, ev := range events {
		e.dispatch(ctx, country, ev)
	}

	e.logger.Info().
		Str("country", country).
		Int("new", result.New).
		Int("removed", result.Removed).
		Int("closed", result.Closed).
		Int("unchanged", result.Unchanged).
		Msg("sync cycle complete")
	return result, nil
}

type alertEvent struct {
	kind         string
	advertiserID string
	name         string
	details      string
}

func (e *Engine) kindEnabled(kind string) bool {
	if !e.cfg.Enabled {
		return false
	}
	switch kind {
	case EventNew:
		return e.cfg.OnNew
	case EventRemoved:
		return e.cfg.OnRemoved
	case EventClosed:
		return e.cfg.OnClosed
	case EventFeedFailure:
		return e.cfg.OnFeedFailure
	}
	return false
}

// dispatch sends one alert email and writes the audit entry. The entry
// is written even when delivery fails.
func (e *Engine) dispatch(ctx context.Context, country string, ev alertEvent) {
	if !e.kindEnabled(ev.kind) {
		return
	}

	subject := fmt.Sprintf("[affiliate-hub] %s programme %s (%s)", e.fetcher.Name(), ev.kind, country)
	body := fmt.Sprintf("%s\nadvertiser: %s\ncountry: %s\n%s\n", ev.name, ev.advertiserID, country, ev.details)
	sent, info := e.mailer.Send(subject, body)

	advertiserID := ev.advertiserID
	entry := storage.AlertLogEntry{
		TS:           e.now().UTC(),
		Event:        ev.kind,
		Country:      country,
		AdvertiserID: &advertiserID,
		Name:         ev.name,
		Details:      ev.details,
		EmailSent:    sent,
		EmailInfo:    info,
	}
	if _, err := e.auditLog.InsertAlertLog(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("event", ev.kind).Msg("alert log insert failed")
	}
}

// handleFeedFailure writes an audit entry for a failed programme fetch.
// Email delivery is throttled to one per country per cooldown window;
// the log entry is written either way.
func (e *Engine) handleFeedFailure(ctx context.Context, country string, fetchErr error) {
	e.logger.Warn().Err(fetchErr).Str("country", country).Msg("programme fetch failed")

	if !e.kindEnabled(EventFeedFailure) {
		return
	}

	now := e.now().UTC()
	sent := false
	info := "throttled by cooldown"
	if e.throttle.Allow(country, now, e.cfg.Cooldown) {
		subject := fmt.Sprintf("[affiliate-hub] %s feed failure (%s)", e.fetcher.Name(), country)
		body := fmt.Sprintf("programme fetch for %s failed: %v\n", country, fetchErr)
		sent, info = e.mailer.Send(subject, body)
	}

	entry := storage.AlertLogEntry{
		TS:        now,
		Event:     EventFeedFailure,
		Country:   country,
		Details:   fetchErr.Error(),
		EmailSent: sent,
		EmailInfo: info,
	}
	if _, err := e.auditLog.InsertAlertLog(ctx, entry); err != nil {
		e.logger.Error().Err(err).Msg("alert log insert failed")
	}
}

func containsFold(set []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, item := range set {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
