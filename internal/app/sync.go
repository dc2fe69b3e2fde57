package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Sync runs the programme diff and alert cycle for the given countries,
// defaulting to the configured country list.
func (a *App) Sync(ctx context.Context, countries []string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sync programme state")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	if len(countries) == 0 {
		countries = a.Config.Countries()
	}
	if len(countries) == 0 {
		return errors.New("no countries configured; set display.countries or pass --country")
	}

	for _, country := range countries {
		result, err := svc.SyncCountry(ctx, country)
		if err != nil {
			a.Logger.Error().Err(err).Str("country", country).Msg("sync failed")
			continue
		}
		if result.FeedFailure {
			fmt.Fprintf(os.Stdout, "%s: programme fetch failed, feed_failure alert path taken\n", country)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: new=%d removed=%d closed=%d unchanged=%d\n",
			country, result.New, result.Removed, result.Closed, result.Unchanged)
	}
	return nil
}
