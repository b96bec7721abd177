package model

import "time"

// Status is the lifecycle state of a job, recomputed on every query.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// warrantyDays is the length of the Delivery warranty window.
const warrantyDays = 30

// StatusAt derives the status at now. Manual completion always wins; a job
// whose return time has passed reads as completed without being marked.
func StatusAt(now time.Time, completed bool, departure, ret time.Time) Status {
	switch {
	case completed:
		return StatusCompleted
	case !now.Before(departure) && now.Before(ret):
		return StatusInProgress
	case !now.Before(ret):
		return StatusCompleted
	default:
		return StatusUpcoming
	}
}

func (j *Job) Status(now time.Time) Status {
	return StatusAt(now, j.completed, j.DepartureTime(), j.EstimatedReturnTime())
}

// CompletionPoint is the instant the job counts as finished: the manual
// completion time if set, otherwise the estimated return time once it has
// passed.
func (j *Job) CompletionPoint(now time.Time) (time.Time, bool) {
	if at, ok := j.CompletedAt(); ok {
		return at, true
	}
	ret := j.EstimatedReturnTime()
	if !now.Before(ret) {
		return ret, true
	}
	return time.Time{}, false
}

// HasWarranty reports whether the warranty window applies to this job.
func (j *Job) HasWarranty() bool {
	return j.Type == Delivery
}

// WarrantyExpiration is the completion point plus 30 days, for Delivery jobs
// that have reached completion.
func (j *Job) WarrantyExpiration(now time.Time) (time.Time, bool) {
	if !j.HasWarranty() {
		return time.Time{}, false
	}
	at, ok := j.CompletionPoint(now)
	if !ok {
		return time.Time{}, false
	}
	return at.AddDate(0, 0, warrantyDays), true
}

// WarrantyDaysRemaining counts whole days from now until expiration, never
// below zero.
func (j *Job) WarrantyDaysRemaining(now time.Time) (int, bool) {
	exp, ok := j.WarrantyExpiration(now)
	if !ok {
		return 0, false
	}
	return max(0, wholeDays(now, exp)), true
}

func (j *Job) IsWarrantyExpired(now time.Time) bool {
	days, ok := j.WarrantyDaysRemaining(now)
	return ok && days <= 0
}

// wholeDays counts calendar days from from to to in from's location,
// truncated toward zero: a day counts once to's wall clock reaches from's.
// The 30-day window comes from AddDate, so a DST shift inside it must not
// cost a day.
func wholeDays(from, to time.Time) int {
	to = to.In(from.Location())
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	days := int(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC).Sub(time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)) / (24 * time.Hour))

	switch fc, tc := clockOf(from), clockOf(to); {
	case days > 0 && tc < fc:
		days--
	case days < 0 && tc > fc:
		days++
	}
	return days
}

// clockOf is the wall-clock offset into the day.
func clockOf(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
