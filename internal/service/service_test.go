package service

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/network"
	"github.com/zaorak/affiliate-hub/internal/storage"
	"github.com/zaorak/affiliate-hub/internal/watch"
)

type stubFetcher struct {
	name string
	snap network.CommissionSnapshot
	err  error
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Commissions(ctx context.Context, q network.Query) (network.CommissionSnapshot, error) {
	if s.err != nil {
		return network.CommissionSnapshot{}, s.err
	}
	return s.snap, nil
}

func serviceConfig() *config.Config {
	return &config.Config{
		Display: config.DisplayConfig{
			Currency:  "EUR",
			DaysBack:  5,
			Countries: []string{"se", "RO"},
			Networks:  []string{"awin", "addrevenue"},
			SubIDs:    []string{"blog-1"},
		},
		Scheduler: config.SchedulerConfig{Interval: 24 * time.Hour},
		Export:    config.ExportConfig{MaxDataPoints: 1000},
	}
}

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestService(fetchers ...network.Fetcher) *Service {
	svc := New(serviceConfig(), nil, Adapters{}, nil, nil, nil, zerolog.Nop())
	svc.fetchers = fetchers
	return svc
}

func TestBuildQuery(t *testing.T) {
	svc := newTestService()
	now := testNow

	q := svc.BuildQuery(now)
	if q.Currency != "EUR" {
		t.Fatalf("目标货币不正确: %s", q.Currency)
	}
	if !q.Start.Equal(now.AddDate(0, 0, -5)) || !q.End.Equal(now) {
		t.Fatalf("窗口不正确: %v .. %v", q.Start, q.End)
	}
	if len(q.Countries) != 2 || q.Countries[0] != "SE" || q.Countries[1] != "RO" {
		t.Fatalf("国家列表应规范化: %v", q.Countries)
	}
	if q.Match != network.MatchExact {
		t.Fatal("默认应为精确匹配")
	}
}

func TestOverviewAggregates(t *testing.T) {
	ok := &stubFetcher{name: "awin", snap: network.CommissionSnapshot{
		Network:   "awin",
		Currency:  "EUR",
		FXRate:    decimal.NewFromInt(1),
		Total:     decimal.RequireFromString("15"),
		Confirmed: decimal.RequireFromString("10"),
		Pending:   decimal.RequireFromString("5"),
	}}
	degraded := &stubFetcher{name: "addrevenue", snap: network.BlankSnapshot("addrevenue", "EUR", "addrevenue: GET /transactions 返回 502")}
	svc := newTestService(ok, degraded)

	overview, err := svc.Overview(context.Background(), svc.BuildQuery(testNow))
	if err != nil {
		t.Fatalf("Overview 失败: %v", err)
	}
	if len(overview.Snapshots) != 2 {
		t.Fatalf("应包含全部网络: %d", len(overview.Snapshots))
	}
	if !overview.Total.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("总额不正确: %s", overview.Total)
	}
	if !overview.Total.Sub(overview.Confirmed.Add(overview.Pending)).IsZero() {
		t.Fatal("total 应等于 confirmed+pending")
	}
	if len(overview.Warnings) != 1 || !strings.Contains(overview.Warnings[0], "addrevenue") {
		t.Fatalf("故障网络应产生警告: %v", overview.Warnings)
	}
}

func TestOverviewPropagatesConfigurationError(t *testing.T) {
	bad := &stubFetcher{name: "awin", err: &network.ConfigurationError{Network: "awin", Detail: "window exceeds 31 days"}}
	svc := newTestService(bad)

	if _, err := svc.Overview(context.Background(), svc.BuildQuery(testNow)); err == nil {
		t.Fatal("配置错误应向上传递")
	}
}

func TestAppendSnapshotCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "earnings.csv")
	row := storage.EarningsRow{
		RunID:       uuid.New(),
		RunAt:       time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Network:     "awin",
		WindowStart: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Countries:   []string{"SE"},
		Currency:    "EUR",
		FXRate:      decimal.NewFromInt(1),
		Total:       decimal.RequireFromString("15"),
		Confirmed:   decimal.RequireFromString("10"),
		Pending:     decimal.RequireFromString("5"),
		RawRows:     4,
	}

	for i := 0; i < 2; i++ {
		if err := appendSnapshotCSV(path, []storage.EarningsRow{row}); err != nil {
			t.Fatalf("appendSnapshotCSV 失败: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开 CSV 失败: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("读取 CSV 失败: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("应为表头加两行数据, 实际 %d", len(records))
	}
	if records[0][0] != "run_id" {
		t.Fatalf("表头不正确: %v", records[0])
	}
	if records[1][2] != "awin" || records[1][10] != "15" {
		t.Fatalf("数据行不正确: %v", records[1])
	}
}

type stubProgrammes struct{ err error }

func (s *stubProgrammes) Name() string { return "awin" }

func (s *stubProgrammes) Programmes(ctx context.Context, country string) ([]network.Programme, error) {
	return nil, s.err
}

type fakeLocker struct {
	free     bool
	unlocked bool
}

func (l *fakeLocker) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if !l.free {
		return nil, false, nil
	}
	return func() { l.unlocked = true }, true, nil
}

func TestSyncCountryTakesAdvisoryLock(t *testing.T) {
	cfg := serviceConfig()
	cfg.Scheduler.AdvisoryLockKey = 4711
	engine := watch.NewEngine(&stubProgrammes{err: errors.New("feed down")}, nil, nil, nil, nil, config.AlertsConfig{}, zerolog.Nop())

	held := &fakeLocker{}
	svc := New(cfg, nil, Adapters{}, engine, nil, held, zerolog.Nop())
	if _, err := svc.SyncCountry(context.Background(), "SE"); err == nil {
		t.Fatal("锁被他处持有时应返回错误")
	}

	free := &fakeLocker{free: true}
	svc = New(cfg, nil, Adapters{}, engine, nil, free, zerolog.Nop())
	res, err := svc.SyncCountry(context.Background(), "SE")
	if err != nil {
		t.Fatalf("SyncCountry: %v", err)
	}
	if !res.FeedFailure {
		t.Fatalf("拉取失败应走 feed_failure 分支: %+v", res)
	}
	if !free.unlocked {
		t.Fatal("同步结束后应释放锁")
	}
}

func TestAdaptersFetchersOrder(t *testing.T) {
	a := Adapters{}
	if got := a.Fetchers([]string{"awin", "dognet"}); len(got) != 0 {
		t.Fatalf("未配置的适配器不应返回: %d", len(got))
	}
}
