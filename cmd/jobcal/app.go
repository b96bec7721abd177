package main

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"jobcal/internal/config"
	"jobcal/internal/drivetime"
	"jobcal/internal/ics"
	appLog "jobcal/internal/log"
	"jobcal/internal/model"
	"jobcal/internal/notify"
	"jobcal/internal/planner"
	"jobcal/internal/store"
)

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg      *config.Config
	store    *store.Store
	calendar *ics.FileSync
	notifier *notify.Scheduler
	planner  *planner.Planner
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", configPath)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"database", cfg.Database,
		"calendar_file", cfg.CalendarFile,
		"resync", cfg.Resync,
		"routing", cfg.RoutingURL != "",
	)

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var resolver drivetime.Resolver
	if cfg.RoutingURL != "" {
		resolver = drivetime.NewHTTPResolver(cfg.RoutingURL)
	}

	cal := ics.NewFileSync(cfg.CalendarFile)
	n := notify.New(notify.LogSink, notify.WithLocation(cfg.Location()))
	p := planner.New(planner.Config{
		Store:          st,
		Calendar:       cal,
		Notifier:       n,
		Resolver:       resolver,
		Home:           cfg,
		LookupDebounce: cfg.LookupDebounce(),
	})
	return &app{cfg: cfg, store: st, calendar: cal, notifier: n, planner: p}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		appLog.Error("close store", err)
	}
}

// resolveJob accepts a full id or an unambiguous id prefix.
func (a *app) resolveJob(ctx context.Context, arg string) (*model.Job, error) {
	if j, err := a.planner.Get(ctx, arg); err == nil {
		return j, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	jobs, err := a.planner.List(ctx)
	if err != nil {
		return nil, err
	}
	j, err := matchPrefix(jobs, arg)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func matchPrefix(jobs []*model.Job, prefix string) (*model.Job, error) {
	if prefix == "" {
		return nil, errors.New("job id is empty")
	}
	var found *model.Job
	for _, j := range jobs {
		if !strings.HasPrefix(j.ID, prefix) {
			continue
		}
		if found != nil {
			return nil, errors.Newf("job id prefix %q is ambiguous", prefix)
		}
		found = j
	}
	if found == nil {
		return nil, errors.Wrapf(store.ErrNotFound, "id %q", prefix)
	}
	return found, nil
}

// whenLayouts are accepted by --at and --until, in the configured zone.
var whenLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseWhen(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.WithHint(
		errors.Newf("cannot parse time %q", s),
		`use "2006-01-02 15:04" or RFC 3339`,
	)
}
