package model

import (
	"strconv"
	"time"
)

// Every derived time is anchored on the scheduled (arrival) date: prep and
// departure walk backward from it, return walks forward from departure.

// loadOverheadMinutes is the fixed per-job handling time shared by the crew.
const loadOverheadMinutes = 30

// installMinutes is the extra on-site time for an installation.
const installMinutes = 30

// PrepTimeMinutes is the fixed preparation buffer before departure.
func PrepTimeMinutes(t JobType) int {
	switch t {
	case Delivery:
		return 60
	case Installation:
		return 30
	case Pickup:
		return 45
	}
	return 0
}

// EstimatedDurationMinutes is the total time from departure to return: two
// drive legs plus on-site work.
func EstimatedDurationMinutes(t JobType, driveMinutes, people int, includesInstallation bool) int {
	legs := 2 * driveMinutes
	switch t {
	case Delivery:
		base := legs + loadOverheadMinutes/max(1, people)
		if includesInstallation {
			return base + installMinutes
		}
		return base
	case Installation:
		return legs + installMinutes
	case Pickup:
		return legs + loadOverheadMinutes/max(1, people)
	}
	return legs
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func DepartureTime(scheduled time.Time, driveMinutes int) time.Time {
	return scheduled.Add(-minutes(driveMinutes))
}

func PrepStartTime(t JobType, scheduled time.Time, driveMinutes int) time.Time {
	return DepartureTime(scheduled, driveMinutes).Add(-minutes(PrepTimeMinutes(t)))
}

func EstimatedReturnTime(t JobType, scheduled time.Time, driveMinutes, people int, includesInstallation bool) time.Time {
	d := EstimatedDurationMinutes(t, driveMinutes, people, includesInstallation)
	return DepartureTime(scheduled, driveMinutes).Add(minutes(d))
}

// FormatDuration renders minutes as "1h 30m", "2h" or "45m".
func FormatDuration(total int) string {
	h := total / 60
	m := total % 60
	switch {
	case h == 0:
		return strconv.Itoa(m) + "m"
	case m == 0:
		return strconv.Itoa(h) + "h"
	default:
		return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
	}
}

func (j *Job) PrepTimeMinutes() int {
	return PrepTimeMinutes(j.Type)
}

func (j *Job) EstimatedDurationMinutes() int {
	return EstimatedDurationMinutes(j.Type, j.DriveTimeMinutes, j.People(), j.IncludesInstallation)
}

func (j *Job) DepartureTime() time.Time {
	return DepartureTime(j.ScheduledDate, j.DriveTimeMinutes)
}

func (j *Job) PrepStartTime() time.Time {
	return PrepStartTime(j.Type, j.ScheduledDate, j.DriveTimeMinutes)
}

func (j *Job) EstimatedReturnTime() time.Time {
	return EstimatedReturnTime(j.Type, j.ScheduledDate, j.DriveTimeMinutes, j.People(), j.IncludesInstallation)
}
