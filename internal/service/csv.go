package service

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zaorak/affiliate-hub/internal/storage"
)

var snapshotCSVHeader = []string{
	"run_id", "run_at", "network", "window_start", "window_end",
	"countries", "sub_ids", "currency", "source_currency", "fx_rate",
	"total", "confirmed", "pending", "raw_rows", "filtered_rows", "reason",
}

// appendSnapshotCSV appends one run's rows to the snapshot spreadsheet,
// writing the header when the file is new.
func appendSnapshotCSV(path string, rows []storage.EarningsRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if info.Size() == 0 {
		if err := writer.Write(snapshotCSVHeader); err != nil {
			return err
		}
	}

	for _, row := range rows {
		record := []string{
			row.RunID.String(),
			row.RunAt.Format(time.RFC3339),
			row.Network,
			row.WindowStart.Format("2006-01-02"),
			row.WindowEnd.Format("2006-01-02"),
			strings.Join(row.Countries, "|"),
			strings.Join(row.SubIDs, "|"),
			row.Currency,
			row.SourceCurrency,
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

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
