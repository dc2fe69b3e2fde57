package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/zaorak/affiliate-hub/internal/network"
)

// Warmup fetches every network's programme catalog for the configured
// countries. Doubles as a credential check: a failing network shows an
// error instead of a count.
func (a *App) Warmup(ctx context.Context) error {
	countries := a.Config.Countries()
	if len(countries) == 0 {
		return errors.New("no countries configured; set display.countries")
	}

	adapters := a.newAdapters()
	sources := []network.ProgrammeFetcher{
		adapters.AWIN,
		adapters.Addrevenue,
		adapters.Impact,
		adapters.Partnerize,
		adapters.TwoPerformant,
		adapters.Dognet,
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Network\tCountry\tProgrammes\tError")
	for _, src := range sources {
		for _, country := range countries {
			programmes, err := src.Programmes(ctx, country)
			if err != nil {
				fmt.Fprintf(writer, "%s\t%s\t-\t%s\n", src.Name(), country, sanitizeInline(err.Error()))
				continue
			}
			fmt.Fprintf(writer, "%s\t%s\t%d\t\n", src.Name(), country, len(programmes))
		}
	}

	feedRows := adapters.AWIN.FeedRows(ctx)
	fmt.Fprintf(writer, "awin-feeds\t*\t%d\t\n", len(feedRows))
	writer.Flush()
	return nil
}
