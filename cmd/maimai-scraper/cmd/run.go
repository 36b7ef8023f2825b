package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"maimai-scraper/internal/driver"
	"maimai-scraper/internal/i18n"
	"maimai-scraper/internal/scrapers/maimai"
	"maimai-scraper/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var once bool

func init() {
	scrapeCmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Polls the records page, or scrapes it a single time with --once.",
	Run: func(cmd *cobra.Command, args []string) {
		if once {
			runOnce(cmd)
			return
		}
		runPoller(cmd)
	},
}

func newDriver(e env) *driver.Driver {
	return driver.New(e.scraper, e.client, e.time, e.tel, driver.Options{
		Username:    e.cfg.Username,
		Password:    e.cfg.Password,
		Interval:    e.cfg.CheckInterval,
		ScoresEvery: e.cfg.ScoresRefreshCycles,
		OnCycle: func(report maimai.CycleReport, next time.Time) {
			slog.Info(
				e.msgs.T(i18n.NextCheck),
				"new", report.Inserted,
				"detailed", report.Detailed,
				"failed", report.Failed,
				"abandoned", report.Abandoned,
				"next", next.Format(time.Kitchen),
			)
		},
	})
}

func runPoller(cmd *cobra.Command) {
	ctx := cmd.Context()
	e := setup(ctx)

	slog.Info(e.msgs.T(i18n.Welcome), "region", e.cfg.Region, "interval", e.cfg.CheckInterval)
	err := newDriver(e).Run(ctx)
	if err != nil {
		e.Close()
		serviceutil.Fatal(explain(e.msgs, err), err)
	}

	e.Close()
	slog.Info(e.msgs.T(i18n.Goodbye))
}

func runOnce(cmd *cobra.Command) {
	ctx := cmd.Context()
	e := setup(ctx)
	d := newDriver(e)

	err := d.Login(ctx)
	if err != nil {
		e.Close()
		serviceutil.Fatal(explain(e.msgs, err), err)
	}
	slog.Info(e.msgs.T(i18n.LoginSucceeded))

	report, err := d.Cycle(ctx, 0)
	if err != nil && ctx.Err() == nil {
		e.Close()
		serviceutil.Fatal(explain(e.msgs, err), err)
	}
	e.Close()

	fmt.Fprintf(
		os.Stdout,
		"seen %d, new %d, skipped %d, detailed %d, failed %d, abandoned %d\n",
		report.Seen, report.Inserted, report.Skipped, report.Detailed, report.Failed, report.Abandoned,
	)
}
