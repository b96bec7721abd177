package model

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"jobcal/internal/checklist"
)

// JobType is the kind of appliance job.
type JobType string

const (
	Delivery     JobType = "Delivery"
	Installation JobType = "Installation"
	Pickup       JobType = "Pickup"
)

// ErrNotCreatable is returned by New for types that only exist on legacy
// records (Installation).
var ErrNotCreatable = errors.New("job type cannot be created directly")

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case Delivery, Installation, Pickup:
		return true
	}
	return false
}

// Creatable reports whether new jobs may be created with this type.
// Installation is reachable only as Delivery with IncludesInstallation, or
// from records that predate that flag.
func (t JobType) Creatable() bool {
	return t == Delivery || t == Pickup
}

// Fields are the user-supplied attributes of a new job.
type Fields struct {
	Type                 JobType
	Title                string
	Address              string
	ScheduledDate        time.Time
	DriveTimeMinutes     int
	NumberOfPeople       int
	IncludesInstallation bool
	PostTinkering        bool
}

// Job is one scheduled appliance job. Derived times are never stored; see
// schedule.go.
type Job struct {
	ID                   string
	Type                 JobType
	Title                string
	Address              string
	ScheduledDate        time.Time
	DriveTimeMinutes     int
	IncludesInstallation bool
	PostTinkering        bool

	// CalendarEventID references the synced calendar event, if any.
	CalendarEventID string

	people      int
	checked     map[string]struct{}
	completed   bool
	completedAt time.Time
}

// New creates a job with a fresh id. NumberOfPeople is clamped to at least 1.
func New(f Fields) (*Job, error) {
	if !f.Type.Creatable() {
		return nil, errors.Wrapf(ErrNotCreatable, "type %q", f.Type)
	}
	return &Job{
		ID:                   uuid.NewString(),
		Type:                 f.Type,
		Title:                f.Title,
		Address:              f.Address,
		ScheduledDate:        f.ScheduledDate,
		DriveTimeMinutes:     f.DriveTimeMinutes,
		IncludesInstallation: f.IncludesInstallation,
		PostTinkering:        f.PostTinkering,
		people:               clampPeople(f.NumberOfPeople),
		checked:              make(map[string]struct{}),
	}, nil
}

func clampPeople(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// People returns the crew headcount (always >= 1).
func (j *Job) People() int {
	return clampPeople(j.people)
}

// SetPeople sets the crew headcount, clamping to at least 1.
func (j *Job) SetPeople(n int) {
	j.people = clampPeople(n)
}

// HasAddress reports whether the address is known. Whitespace-only counts
// as empty.
func (j *Job) HasAddress() bool {
	return strings.TrimSpace(j.Address) != ""
}

// NormalizeForEdit converts a legacy Installation job into
// Delivery{IncludesInstallation: true}. It reports whether anything changed.
func (j *Job) NormalizeForEdit() bool {
	if j.Type != Installation {
		return false
	}
	j.Type = Delivery
	j.IncludesInstallation = true
	return true
}

// ChecklistConfig selects the checklist templates for this job.
func (j *Job) ChecklistConfig() checklist.Config {
	return checklist.Config{
		Kind:                 string(j.Type),
		IncludesInstallation: j.IncludesInstallation,
		PostTinkering:        j.PostTinkering,
	}
}

// ChecklistItems is the flattened item list for this job.
func (j *Job) ChecklistItems() []string {
	return checklist.AllItems(j.ChecklistConfig())
}

// ChecklistProgress is the checked fraction of ChecklistItems, in [0,1].
func (j *Job) ChecklistProgress() float64 {
	return checklist.Progress(j.ChecklistItems(), j.checked)
}

func (j *Job) IsItemChecked(name string) bool {
	_, ok := j.checked[name]
	return ok
}

// ToggleItem adds name to the checked set if absent, removes it otherwise.
func (j *Job) ToggleItem(name string) {
	if j.checked == nil {
		j.checked = make(map[string]struct{})
	}
	if _, ok := j.checked[name]; ok {
		delete(j.checked, name)
		return
	}
	j.checked[name] = struct{}{}
}

// CheckedItems returns the checked names sorted, for stable storage.
// Names no longer in the catalog are kept.
func (j *Job) CheckedItems() []string {
	out := make([]string, 0, len(j.checked))
	for name := range j.checked {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (j *Job) IsCompleted() bool {
	return j.completed
}

// CompletedAt returns the manual completion time; ok is false unless the job
// was marked completed.
func (j *Job) CompletedAt() (at time.Time, ok bool) {
	if !j.completed {
		return time.Time{}, false
	}
	return j.completedAt, true
}

// MarkCompleted records manual completion at now. Calling it again refreshes
// the completion time.
func (j *Job) MarkCompleted(now time.Time) {
	j.completed = true
	j.completedAt = now
}

// Snapshot is the persisted shape of a Job. Completed is nil for records
// written before manual completion existed.
type Snapshot struct {
	ID                   string
	Type                 JobType
	Title                string
	Address              string
	ScheduledDate        time.Time
	DriveTimeMinutes     int
	NumberOfPeople       int
	IncludesInstallation bool
	PostTinkering        bool
	CheckedItems         []string
	Completed            *bool
	CompletedAt          *time.Time
	CalendarEventID      string
}

// CompletionFromLegacy resolves the stored completion pair. A missing flag
// means not completed. The flag and the date must agree: a completed flag
// without a date, or a date without the flag, both read as not completed.
func CompletionFromLegacy(completed *bool, at *time.Time) (bool, time.Time) {
	if completed == nil || !*completed || at == nil {
		return false, time.Time{}
	}
	return true, *at
}

// Restore rebuilds a Job from storage without the creation-time type check,
// so legacy Installation records load unchanged.
func Restore(s Snapshot) *Job {
	j := &Job{
		ID:                   s.ID,
		Type:                 s.Type,
		Title:                s.Title,
		Address:              s.Address,
		ScheduledDate:        s.ScheduledDate,
		DriveTimeMinutes:     s.DriveTimeMinutes,
		IncludesInstallation: s.IncludesInstallation,
		PostTinkering:        s.PostTinkering,
		CalendarEventID:      s.CalendarEventID,
		people:               clampPeople(s.NumberOfPeople),
		checked:              make(map[string]struct{}, len(s.CheckedItems)),
	}
	for _, name := range s.CheckedItems {
		j.checked[name] = struct{}{}
	}
	j.completed, j.completedAt = CompletionFromLegacy(s.Completed, s.CompletedAt)
	return j
}

// Snapshot returns the persisted shape of j.
func (j *Job) Snapshot() Snapshot {
	completed := j.completed
	s := Snapshot{
		ID:                   j.ID,
		Type:                 j.Type,
		Title:                j.Title,
		Address:              j.Address,
		ScheduledDate:        j.ScheduledDate,
		DriveTimeMinutes:     j.DriveTimeMinutes,
		NumberOfPeople:       j.People(),
		IncludesInstallation: j.IncludesInstallation,
		PostTinkering:        j.PostTinkering,
		CheckedItems:         j.CheckedItems(),
		Completed:            &completed,
		CalendarEventID:      j.CalendarEventID,
	}
	if j.completed {
		at := j.completedAt
		s.CompletedAt = &at
	}
	return s
}
