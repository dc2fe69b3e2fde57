package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent snapshot rows, or the alert audit log with --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		entries, err := store.ListRecentAlertLog(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "no alert log entries found")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tEvent\tCountry\tAdvertiser\tName\tSent\tInfo")
		for _, entry := range entries {
			advertiser := ""
			if entry.AdvertiserID != nil {
				advertiser = *entry.AdvertiserID
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				entry.TS.UTC().Format(time.RFC3339),
				entry.Event,
				entry.Country,
				advertiser,
				entry.Name,
				entry.EmailSent,
				sanitizeInline(entry.EmailInfo),
			)
		}
		writer.Flush()
		return nil
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -opts.Limit)
	rows, err := store.ListEarningsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshot rows found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Run (UTC)\tNetwork\tCurrency\tTotal\tConfirmed\tPending\tRows\tReason")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			row.RunAt.UTC().Format(time.RFC3339),
			row.Network,
			row.Currency,
			row.Total.StringFixed(2),
			row.Confirmed.StringFixed(2),
			row.Pending.StringFixed(2),
			row.RawRows,
			sanitizeInline(row.Reason),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
