// Package notify schedules per-job reminders on a cron runner. Delivery is
// left to a Sink.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "jobcal/internal/log"
)

// Kind names one of the three reminders a job can have.
type Kind string

const (
	KindPrep      Kind = "prep"
	KindDeparture Kind = "departure"
	KindPostJob   Kind = "post_job"
)

// Reminder is one pending trigger.
type Reminder struct {
	ID    string    `json:"id"`
	JobID string    `json:"job_id"`
	Kind  Kind      `json:"kind"`
	At    time.Time `json:"at"`
}

// Sink delivers a reminder when it fires.
type Sink interface {
	Deliver(ctx context.Context, r Reminder)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Reminder)

func (f SinkFunc) Deliver(ctx context.Context, r Reminder) { f(ctx, r) }

// LogSink writes reminders to the application log.
var LogSink = SinkFunc(func(_ context.Context, r Reminder) {
	appLog.Info("reminder", "job_id", r.JobID, "kind", r.Kind, "at", r.At.Format(time.RFC3339))
})

// Times are the trigger instants for one job.
type Times struct {
	PrepStart     time.Time
	Departure     time.Time
	Return        time.Time
	PostTinkering bool
}

// once fires a single time at the given instant.
type once struct {
	at time.Time
}

func (o once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	// A zero Next parks the entry; cron never runs it again.
	return time.Time{}
}

type entry struct {
	reminder Reminder
	id       cron.EntryID
}

// Scheduler owns the cron runner and the reminders registered per job.
type Scheduler struct {
	cron *cron.Cron
	sink Sink
	now  func() time.Time
	ctx  context.Context

	mu      sync.Mutex
	pending map[string][]entry
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to skip past triggers.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the cron runner's time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = newCron(loc) }
}

func newCron(loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(appLog.CronLogger()),
		cron.WithChain(cron.Recover(appLog.CronLogger())),
	)
}

func New(sink Sink, opts ...Option) *Scheduler {
	if sink == nil {
		sink = LogSink
	}
	s := &Scheduler{
		cron:    newCron(time.Local),
		sink:    sink,
		now:     time.Now,
		ctx:     context.Background(),
		pending: make(map[string][]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the cron loop until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

// Cron exposes the runner so periodic jobs can share it.
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// Schedule replaces the reminders for jobID. Nothing is scheduled when the
// prep start has already passed; otherwise each trigger whose time has
// passed is skipped on its own. The post-job reminder exists only for
// post-tinkering jobs. It returns what was scheduled.
func (s *Scheduler) Schedule(jobID string, t Times) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(jobID)

	now := s.now()
	if t.PrepStart.Before(now) {
		appLog.Debug("reminders skipped, prep start passed", "job_id", jobID)
		return nil
	}

	candidates := []Reminder{
		{ID: jobID + "-" + string(KindPrep), JobID: jobID, Kind: KindPrep, At: t.PrepStart},
		{ID: jobID + "-" + string(KindDeparture), JobID: jobID, Kind: KindDeparture, At: t.Departure},
	}
	if t.PostTinkering {
		candidates = append(candidates, Reminder{ID: jobID + "-" + string(KindPostJob), JobID: jobID, Kind: KindPostJob, At: t.Return})
	}

	var scheduled []Reminder
	var entries []entry
	for _, r := range candidates {
		if r.At.Before(now) {
			continue
		}
		r := r
		id := s.cron.Schedule(once{at: r.At}, cron.FuncJob(func() { s.fire(r) }))
		entries = append(entries, entry{reminder: r, id: id})
		scheduled = append(scheduled, r)
	}
	if len(entries) > 0 {
		s.pending[jobID] = entries
	}
	appLog.Debug("reminders scheduled", "job_id", jobID, "count", len(scheduled))
	return scheduled
}

// Cancel removes every reminder for jobID.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(jobID)
}

// Pending lists the reminders registered for jobID, earliest first.
func (s *Scheduler) Pending(jobID string) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, 0, len(s.pending[jobID]))
	for _, e := range s.pending[jobID] {
		out = append(out, e.reminder)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (s *Scheduler) cancelLocked(jobID string) {
	for _, e := range s.pending[jobID] {
		s.cron.Remove(e.id)
	}
	delete(s.pending, jobID)
}

func (s *Scheduler) fire(r Reminder) {
	s.mu.Lock()
	ctx := s.ctx
	entries := s.pending[r.JobID]
	found := false
	for i, e := range entries {
		if e.reminder.ID == r.ID && e.reminder.At.Equal(r.At) {
			s.cron.Remove(e.id)
			entries = append(entries[:i], entries[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		// Canceled or rescheduled after cron picked it up.
		s.mu.Unlock()
		return
	}
	if len(entries) == 0 {
		delete(s.pending, r.JobID)
	} else {
		s.pending[r.JobID] = entries
	}
	s.mu.Unlock()

	s.sink.Deliver(ctx, r)
}
