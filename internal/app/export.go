package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/zaorak/affiliate-hub/internal/storage"
)

// Export renders snapshot history as CSV and/or a PNG earnings chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := store.ListEarningsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no snapshot rows found for export window")
		return nil
	}

	runs := totalsByRun(rows)
	downsampled := downsampleRuns(runs, opts.MaxPoints)
	a.Logger.Info().Int("rows", len(rows)).Int("runs", len(runs)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeEarningsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// runTotal is one scheduled run summed across networks.
type runTotal struct {
	At        time.Time
	Total     decimal.Decimal
	Confirmed decimal.Decimal
	Pending   decimal.Decimal
}

func totalsByRun(rows []storage.EarningsRow) []runTotal {
	byRun := make(map[time.Time]*runTotal)
	for _, row := range rows {
		at := row.RunAt.UTC()
		run, ok := byRun[at]
		if !ok {
			run = &runTotal{At: at}
			byRun[at] = run
		}
		run.Total = run.Total.Add(row.Total)
		run.Confirmed = run.Confirmed.Add(row.Confirmed)
		run.Pending = run.Pending.Add(row.Pending)
	}

	out := make([]runTotal, 0, len(byRun))
	for _, run := range byRun {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func downsampleRuns(runs []runTotal, max int) []runTotal {
	if max <= 0 || len(runs) <= max {
		return runs
	}

	result := make([]runTotal, 0, max)
	step := float64(len(runs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(runs) {
			idx = len(runs) - 1
		}
		result = append(result, runs[idx])
	}
	return result
}

func writeSnapshotCSV(path string, rows []storage.EarningsRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"run_at", "network", "window_start", "window_end", "countries", "currency", "fx_rate", "total", "confirmed", "pending", "raw_rows", "filtered_rows", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.RunAt.UTC().Format(time.RFC3339),
			row.Network,
			row.WindowStart.Format("2006-01-02"),
			row.WindowEnd.Format("2006-01-02"),
			strings.Join(row.Countries, "|"),
			row.Currency,
			row.FXRate.String(),
			row.Total.String(),
			row.Confirmed.String(),
			row.Pending.String(),
			strconv.Itoa(row.RawRows),
			strconv.Itoa(row.FilteredRows),
			row.Reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeEarningsPNG(path string, runs []runTotal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(runs))
	total := make([]float64, len(runs))
	confirmed := make([]float64, len(runs))
	pending := make([]float64, len(runs))

	for i, run := range runs {
		x[i] = run.At
		total[i] = run.Total.InexactFloat64()
		confirmed[i] = run.Confirmed.InexactFloat64()
		pending[i] = run.Pending.InexactFloat64()
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Commission",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Total",
				XValues: x,
				YValues: total,
			},
			chart.TimeSeries{
				Name:    "Confirmed",
				XValues: x,
				YValues: confirmed,
			},
			chart.TimeSeries{
				Name:    "Pending",
				XValues: x,
				YValues: pending,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
