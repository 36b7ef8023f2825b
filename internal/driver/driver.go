package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maimai-scraper/internal/components/assert"
	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/scrapers/maimai"
)

const (
	report_driver_cycle   = "driver.cycle"
	report_driver_player  = "driver.player"
	report_driver_scores  = "driver.scores"
	report_driver_records = "driver.show-records"
	report_driver_cycles  = "driver.cycles"
)

// Scraper is the part of maimai.Scraper the driver runs.
//
// note: fault injection point
type Scraper interface {
	RunCycle(ctx context.Context) (maimai.CycleReport, error)
	RecordPlayer(ctx context.Context) (bool, error)
	RefreshScores(ctx context.Context) (int, error)
}

// Session is the logged in browsing session the scraper reads pages from.
//
// note: fault injection point
type Session interface {
	Login(ctx context.Context, username, password string) error
	ShowRecords(ctx context.Context) error
}

type Options struct {
	Username string
	Password string
	// Interval is the pause between the end of one cycle and the start of
	// the next.
	Interval time.Duration
	// ScoresEvery refreshes the score listings on every nth cycle (starting
	// with the first), 0 never does.
	ScoresEvery int
	// OnCycle is called after every cycle that did not fail fatally.
	OnCycle func(report maimai.CycleReport, next time.Time)
}

type Driver struct {
	scraper Scraper
	session Session
	time    chrono.TimeAPI
	tel     telemetry.API
	opts    Options
}

func New(scraper Scraper, session Session, time chrono.TimeAPI, tel telemetry.API, opts Options) *Driver {
	assert.NotNil(scraper)
	assert.NotNil(session)
	assert.NotNil(time)
	assert.NotNil(tel)

	return &Driver{
		scraper: scraper,
		session: session,
		time:    time,
		tel:     telemetry.NewScopedAPI("driver", tel),
		opts:    opts,
	}
}

// Fatal returns true for errors the driver cannot continue after.
func Fatal(err error) bool {
	return errors.Is(err, maimai.ErrMaintenance) ||
		errors.Is(err, maimai.ErrSessionExpired) ||
		errors.Is(err, maimai.ErrLoginFailed) ||
		errors.Is(err, maimai.ErrStorage)
}

// Login logs the session in, every failure is fatal.
func (d *Driver) Login(ctx context.Context) error {
	err := d.session.Login(ctx, d.opts.Username, d.opts.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Cycle runs one scrape cycle along with the bookkeeping around it, only
// fatal errors are returned.
func (d *Driver) Cycle(ctx context.Context, n int) (maimai.CycleReport, error) {
	report, err := d.scraper.RunCycle(ctx)
	if err != nil {
		if Fatal(err) || ctx.Err() != nil {
			return report, err
		}
		d.tel.ReportWarning(report_driver_cycle, err)
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	_, err = d.scraper.RecordPlayer(ctx)
	if err != nil {
		if Fatal(err) || ctx.Err() != nil {
			return report, err
		}
		d.tel.ReportWarning(report_driver_player, err)
	}

	if d.opts.ScoresEvery > 0 && n%d.opts.ScoresEvery == 0 {
		updated, err := d.scraper.RefreshScores(ctx)
		if err != nil {
			if Fatal(err) || ctx.Err() != nil {
				return report, err
			}
			d.tel.ReportWarning(report_driver_scores, err)
		}
		d.tel.ReportDebug("refreshed scores", "updated", updated)
	}

	err = d.session.ShowRecords(ctx)
	if err != nil {
		if Fatal(err) || ctx.Err() != nil {
			return report, err
		}
		d.tel.ReportWarning(report_driver_records, err)
	}

	return report, nil
}

// Run logs in once and then scrapes every Interval until the context is
// cancelled (nil is returned) or a fatal error occurs (it is returned).
func (d *Driver) Run(ctx context.Context) error {
	err := d.Login(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}

	for n := 0; ; n++ {
		report, err := d.Cycle(ctx, n)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		d.tel.ReportCount(report_driver_cycles, int64(n+1))

		next := d.time.Now().Add(d.opts.Interval)
		if d.opts.OnCycle != nil {
			d.opts.OnCycle(report, next)
		}

		if chrono.Sleep(ctx, d.opts.Interval) != nil {
			return nil
		}
	}
}
