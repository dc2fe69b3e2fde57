package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zaorak/affiliate-hub/internal/network"
	"github.com/zaorak/affiliate-hub/internal/storage"
	"github.com/zaorak/affiliate-hub/internal/watch"
)

// SimulateAlert 通过静态的节目列表走一遍完整的 diff 与告警流程,
// 用于在不触网的情况下验证 SMTP 配置。
func (a *App) SimulateAlert(ctx context.Context, country, advertiserID, name string) error {
	if !a.Config.Alerts.Enabled {
		return errors.New("alerts 未启用")
	}

	source := &staticProgrammeSource{programmes: []network.Programme{
		{
			Network:      "awin",
			AdvertiserID: advertiserID,
			Name:         name,
			Status:       "active",
			Relationship: "joined",
			Country:      country,
		},
	}}
	store := newMemoryProgrammeStore()

	engine := watch.NewEngine(source, store, store, a.newMailer(), a.throttle, a.Config.Alerts, a.Logger)

	result, err := engine.Sync(ctx, country)
	if err != nil {
		return err
	}

	for _, entry := range store.entries {
		fmt.Fprintf(os.Stdout, "%s %s advertiser=%s sent=%t info=%s\n",
			entry.Event, entry.Country, derefString(entry.AdvertiserID), entry.EmailSent, entry.EmailInfo)
	}
	a.Logger.Info().Int("new", result.New).Msg("simulated alert cycle complete")
	return nil
}

type staticProgrammeSource struct {
	programmes []network.Programme
}

func (s *staticProgrammeSource) Name() string { return "awin" }

func (s *staticProgrammeSource) Programmes(ctx context.Context, country string) ([]network.Programme, error) {
	return s.programmes, nil
}

// memoryProgrammeStore backs a simulation run; nothing is persisted.
type memoryProgrammeStore struct {
	records map[string]storage.ProgrammeRecord
	entries []storage.AlertLogEntry
}

func newMemoryProgrammeStore() *memoryProgrammeStore {
	return &memoryProgrammeStore{records: make(map[string]storage.ProgrammeRecord)}
}

func (m *memoryProgrammeStore) ListProgrammes(ctx context.Context, networkName, country string) (map[string]storage.ProgrammeRecord, error) {
	out := make(map[string]storage.ProgrammeRecord, len(m.records))
	for id, rec := range m.records {
		out[id] = rec
	}
	return out, nil
}

func (m *memoryProgrammeStore) ApplyDiff(ctx context.Context, networkName, country string, upserts []storage.ProgrammeRecord, removals []string) error {
	for _, rec := range upserts {
		m.records[rec.AdvertiserID] = rec
	}
	for _, id := range removals {
		delete(m.records, id)
	}
	return nil
}

func (m *memoryProgrammeStore) InsertAlertLog(ctx context.Context, entry storage.AlertLogEntry) (int64, error) {
	m.entries = append(m.entries, entry)
	return int64(len(m.entries)), nil
}

func (m *memoryProgrammeStore) ListRecentAlertLog(ctx context.Context, limit int) ([]storage.AlertLogEntry, error) {
	return m.entries, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

var _ network.ProgrammeFetcher = (*staticProgrammeSource)(nil)
var _ storage.ProgrammeStore = (*memoryProgrammeStore)(nil)
var _ storage.AlertLogStore = (*memoryProgrammeStore)(nil)
