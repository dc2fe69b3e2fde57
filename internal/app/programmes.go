package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// Programmes lists one network's joined programmes for a country,
// optionally with resolved feed URLs.
func (a *App) Programmes(ctx context.Context, opts ProgrammesOptions) error {
	if opts.Network == "" {
		return errors.New("--network is required")
	}
	if opts.Country == "" {
		return errors.New("--country is required")
	}
	country := strings.ToUpper(strings.TrimSpace(opts.Country))

	svc := a.newService(nil, nil)

	views, err := svc.ProgrammesForDisplay(ctx, opts.Network, country)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(os.Stdout, "no programmes found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Advertiser\tName\tStatus\tRelationship\tCountry\tFeeds\tTracking")
	for _, view := range views {
		prog := view.Programme
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			prog.AdvertiserID,
			prog.Name,
			prog.Status,
			prog.Relationship,
			prog.Country,
			len(view.Feeds),
			view.TrackingURL,
		)
	}
	writer.Flush()

	if opts.Feeds {
		for _, view := range views {
			for _, feed := range view.Feeds {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", view.Programme.AdvertiserID, feed)
			}
		}
	}
	return nil
}
