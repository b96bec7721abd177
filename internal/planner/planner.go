// Package planner ties job persistence to the calendar, reminders and
// drive-time lookups. Derived times are recomputed on every sync, so any
// operation here may be repeated safely.
package planner

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"jobcal/internal/drivetime"
	"jobcal/internal/ics"
	appLog "jobcal/internal/log"
	"jobcal/internal/model"
	"jobcal/internal/notify"
	"jobcal/internal/store"
)

// maxSeries caps how many jobs one recurring series may create.
const maxSeries = 100

// JobStore persists jobs.
type JobStore interface {
	Create(ctx context.Context, f model.Fields) (*model.Job, error)
	Update(ctx context.Context, j *model.Job) error
	Delete(ctx context.Context, j *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	QueryAll(ctx context.Context) ([]*model.Job, error)
}

// CalendarSync mirrors jobs as calendar events.
type CalendarSync interface {
	Upsert(ctx context.Context, req ics.UpsertRequest) (string, error)
	Remove(ctx context.Context, id string) error
}

// Notifier schedules local reminders.
type Notifier interface {
	Schedule(jobID string, t notify.Times) []notify.Reminder
	Cancel(jobID string)
	Pending(jobID string) []notify.Reminder
}

// HomeSource supplies the origin address for drive-time lookups.
type HomeSource interface {
	Home() (string, bool)
}

// Config wires a Planner.
type Config struct {
	Store          JobStore
	Calendar       CalendarSync
	Notifier       Notifier
	Resolver       drivetime.Resolver
	Home           HomeSource
	LookupDebounce time.Duration
	Now            func() time.Time
}

// Planner applies job operations and keeps the collaborators in step.
type Planner struct {
	store    JobStore
	cal      CalendarSync
	notifier Notifier
	resolver drivetime.Resolver
	home     HomeSource
	debounce time.Duration
	now      func() time.Time

	// Address lookups outlive the request that started them.
	baseCtx context.Context

	mu      sync.Mutex
	lookups map[string]*drivetime.Lookup
	locks   map[string]*jobLock
}

// jobLock serializes load-modify-store cycles on one job. Store updates
// write the whole row, so two unserialized cycles lose one of the edits.
type jobLock struct {
	sync.Mutex
	refs int
}

func New(cfg Config) *Planner {
	p := &Planner{
		store:    cfg.Store,
		cal:      cfg.Calendar,
		notifier: cfg.Notifier,
		resolver: cfg.Resolver,
		home:     cfg.Home,
		debounce: cfg.LookupDebounce,
		now:      cfg.Now,
		baseCtx:  context.Background(),
		lookups:  make(map[string]*drivetime.Lookup),
		locks:    make(map[string]*jobLock),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.resolver == nil {
		p.resolver = drivetime.Static{Err: &drivetime.ResolutionError{Reason: "no routing service configured"}}
	}
	return p
}

// Now is the planner's clock.
func (p *Planner) Now() time.Time {
	return p.now()
}

func (p *Planner) List(ctx context.Context) ([]*model.Job, error) {
	return p.store.QueryAll(ctx)
}

func (p *Planner) Get(ctx context.Context, id string) (*model.Job, error) {
	return p.store.Get(ctx, id)
}

// Create persists a new job and syncs it. Sync failures are logged; the job
// is kept.
func (p *Planner) Create(ctx context.Context, f model.Fields) (*model.Job, error) {
	j, err := p.store.Create(ctx, f)
	if err != nil {
		return nil, err
	}
	appLog.Info("job created", "job_id", j.ID, "type", j.Type, "scheduled", j.ScheduledDate.Format(time.RFC3339))
	unlock := p.lockJob(j.ID)
	defer unlock()
	if err := p.Sync(ctx, j); err != nil {
		appLog.Error("job sync failed", err, "job_id", j.ID)
	}
	return j, nil
}

// CreateSeries creates one job per occurrence of rule between
// f.ScheduledDate and until.
func (p *Planner) CreateSeries(ctx context.Context, f model.Fields, rule string, until time.Time) ([]*model.Job, error) {
	dates, truncated, err := ics.ExpandSeries(rule, f.ScheduledDate, ics.ExpandConfig{
		RangeEnd:       until,
		MaxOccurrences: maxSeries,
	})
	if err != nil {
		return nil, err
	}
	if truncated {
		appLog.Info("series truncated", "rrule", rule, "cap", maxSeries)
	}

	out := make([]*model.Job, 0, len(dates))
	for _, d := range dates {
		occ := f
		occ.ScheduledDate = d
		j, err := p.Create(ctx, occ)
		if err != nil {
			return out, errors.Wrapf(err, "create series occurrence %s", d.Format(time.RFC3339))
		}
		out = append(out, j)
	}
	return out, nil
}

// Update loads the job, applies fn, then persists and re-syncs the result,
// all while holding the job's lock. An error from fn aborts the update.
func (p *Planner) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	if err := p.saveLocked(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// saveLocked persists j and re-syncs it. Legacy Installation jobs are
// converted to Delivery with installation on edit.
func (p *Planner) saveLocked(ctx context.Context, j *model.Job) error {
	if j.NormalizeForEdit() {
		appLog.Info("legacy installation job converted", "job_id", j.ID)
	}
	if err := p.store.Update(ctx, j); err != nil {
		return err
	}
	if err := p.Sync(ctx, j); err != nil {
		appLog.Error("job sync failed", err, "job_id", j.ID)
	}
	return nil
}

// Sync submits the job's current derived times to the calendar and the
// notifier. Completed jobs keep their event but lose pending reminders.
// The caller must hold the job's lock when j may be written concurrently.
func (p *Planner) Sync(ctx context.Context, j *model.Job) error {
	id, err := p.cal.Upsert(ctx, ics.UpsertRequest{
		JobID:               j.ID,
		Title:               j.Title,
		Location:            j.Address,
		Start:               j.DepartureTime(),
		End:                 j.EstimatedReturnTime(),
		RemindMinutesBefore: j.PrepTimeMinutes(),
		ExistingEventID:     j.CalendarEventID,
	})
	if err != nil {
		return errors.Wrap(err, "calendar upsert")
	}
	if id != j.CalendarEventID {
		j.CalendarEventID = id
		if err := p.store.Update(ctx, j); err != nil {
			return errors.Wrap(err, "store calendar event id")
		}
	}

	if j.Status(p.now()) == model.StatusCompleted {
		p.notifier.Cancel(j.ID)
		return nil
	}
	p.notifier.Schedule(j.ID, notify.Times{
		PrepStart:     j.PrepStartTime(),
		Departure:     j.DepartureTime(),
		Return:        j.EstimatedReturnTime(),
		PostTinkering: j.PostTinkering,
	})
	return nil
}

// Delete releases the job's calendar event and reminders, then removes it.
func (p *Planner) Delete(ctx context.Context, id string) error {
	// A lookup applies under the job lock; stop it before taking that lock.
	p.mu.Lock()
	l, ok := p.lookups[id]
	delete(p.lookups, id)
	p.mu.Unlock()
	if ok {
		l.Cancel()
	}

	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := p.cal.Remove(ctx, j.CalendarEventID); err != nil {
		return errors.Wrap(err, "calendar remove")
	}
	p.notifier.Cancel(j.ID)
	if err := p.store.Delete(ctx, j); err != nil {
		return err
	}
	appLog.Info("job deleted", "job_id", id)
	return nil
}

// Complete marks the job completed now.
func (p *Planner) Complete(ctx context.Context, id string) (*model.Job, error) {
	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	j.MarkCompleted(p.now())
	if err := p.store.Update(ctx, j); err != nil {
		return nil, err
	}
	p.notifier.Cancel(j.ID)
	appLog.Info("job completed", "job_id", id)
	return j, nil
}

// ToggleItem flips one checklist item.
func (p *Planner) ToggleItem(ctx context.Context, id, item string) (*model.Job, error) {
	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	j.ToggleItem(item)
	if err := p.store.Update(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// RefreshDriveTime resolves home -> job address and saves the result. On
// any failure the stored drive time is left unchanged.
func (p *Planner) RefreshDriveTime(ctx context.Context, id string) (*model.Job, error) {
	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !j.HasAddress() {
		return nil, errors.Wrapf(drivetime.ErrInvalidInput, "job %s has no address", id)
	}
	mins, err := drivetime.ResolveMinutes(ctx, p.resolver, p.homeAddress(), j.Address)
	if err != nil {
		return nil, err
	}
	j.DriveTimeMinutes = mins
	if err := p.saveLocked(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// SetAddress saves a new address and starts a debounced drive-time lookup.
// Only the most recent lookup per job is applied; its result arrives after
// SetAddress returns. The returned generation identifies the lookup.
func (p *Planner) SetAddress(ctx context.Context, id, address string) (*model.Job, uint64, error) {
	j, err := p.Update(ctx, id, func(j *model.Job) error {
		j.Address = address
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	// The job lock is released here: applyLookup takes it while the Lookup
	// itself is locked.
	gen := p.lookupFor(id).Request(p.baseCtx, p.homeAddress(), address, func(r drivetime.Result) {
		p.applyLookup(id, r)
	})
	return j, gen, nil
}

func (p *Planner) applyLookup(id string, r drivetime.Result) {
	if r.Err != nil {
		appLog.Info("drive time lookup failed", "job_id", id, "err", r.Err.Error())
		return
	}
	_, err := p.Update(p.baseCtx, id, func(j *model.Job) error {
		j.DriveTimeMinutes = r.Minutes
		return nil
	})
	if err != nil {
		appLog.Error("drive time apply", err, "job_id", id)
		return
	}
	appLog.Info("drive time updated", "job_id", id, "minutes", r.Minutes)
}

func (p *Planner) lookupFor(id string) *drivetime.Lookup {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.lookups[id]
	if !ok {
		l = drivetime.NewLookup(p.resolver, p.debounce)
		p.lookups[id] = l
	}
	return l
}

// lockJob locks the job and returns the matching unlock. Entries are
// dropped once no caller holds or waits on them.
func (p *Planner) lockJob(id string) (unlock func()) {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &jobLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

// Reminders lists the job's pending reminders in firing order.
func (p *Planner) Reminders(ctx context.Context, id string) ([]notify.Reminder, error) {
	if _, err := p.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return p.notifier.Pending(id), nil
}

func (p *Planner) homeAddress() string {
	if p.home == nil {
		return ""
	}
	addr, _ := p.home.Home()
	return addr
}

// ResyncAll re-submits every job that is not yet completed and returns how
// many were synced.
func (p *Planner) ResyncAll(ctx context.Context) (int, error) {
	jobs, err := p.store.QueryAll(ctx)
	if err != nil {
		return 0, err
	}
	now := p.now()
	n := 0
	var errs error
	for _, j := range jobs {
		if j.Status(now) == model.StatusCompleted {
			continue
		}
		synced, err := p.resync(ctx, j.ID, now)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "job %s", j.ID))
			continue
		}
		if synced {
			n++
		}
	}
	return n, errs
}

// resync reloads the job under its lock so a concurrent edit is not
// overwritten by the listing's stale copy.
func (p *Planner) resync(ctx context.Context, id string, now time.Time) (bool, error) {
	unlock := p.lockJob(id)
	defer unlock()

	j, err := p.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if j.Status(now) == model.StatusCompleted {
		return false, nil
	}
	return true, p.Sync(ctx, j)
}
