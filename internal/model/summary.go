package model

import "time"

// Summary is a read-only view of a job with every derived value resolved at
// a given instant. It is what the API and CLI render.
type Summary struct {
	ID                   string  `json:"id"`
	Type                 JobType `json:"type"`
	Title                string  `json:"title"`
	Address              string  `json:"address"`
	NumberOfPeople       int     `json:"number_of_people"`
	IncludesInstallation bool    `json:"includes_installation"`
	PostTinkering        bool    `json:"post_tinkering"`

	ScheduledDate       time.Time `json:"scheduled_date"`
	PrepStartTime       time.Time `json:"prep_start_time"`
	DepartureTime       time.Time `json:"departure_time"`
	EstimatedReturnTime time.Time `json:"estimated_return_time"`
	DriveTimeMinutes    int       `json:"drive_time_minutes"`
	DriveTime           string    `json:"drive_time"`
	DurationMinutes     int       `json:"duration_minutes"`
	Duration            string    `json:"duration"`

	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	WarrantyExpiration    *time.Time `json:"warranty_expiration,omitempty"`
	WarrantyDaysRemaining *int       `json:"warranty_days_remaining,omitempty"`
	WarrantyExpired       bool       `json:"warranty_expired"`

	ChecklistItems    []string `json:"checklist_items"`
	CheckedItems      []string `json:"checked_items"`
	ChecklistProgress float64  `json:"checklist_progress"`

	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

// Summarize resolves j at now.
func (j *Job) Summarize(now time.Time) Summary {
	s := Summary{
		ID:                   j.ID,
		Type:                 j.Type,
		Title:                j.Title,
		Address:              j.Address,
		NumberOfPeople:       j.People(),
		IncludesInstallation: j.IncludesInstallation,
		PostTinkering:        j.PostTinkering,
		ScheduledDate:        j.ScheduledDate,
		PrepStartTime:        j.PrepStartTime(),
		DepartureTime:        j.DepartureTime(),
		EstimatedReturnTime:  j.EstimatedReturnTime(),
		DriveTimeMinutes:     j.DriveTimeMinutes,
		DriveTime:            FormatDuration(j.DriveTimeMinutes),
		DurationMinutes:      j.EstimatedDurationMinutes(),
		Duration:             FormatDuration(j.EstimatedDurationMinutes()),
		Status:               j.Status(now),
		Completed:            j.completed,
		WarrantyExpired:      j.IsWarrantyExpired(now),
		ChecklistItems:       j.ChecklistItems(),
		CheckedItems:         j.CheckedItems(),
		ChecklistProgress:    j.ChecklistProgress(),
		CalendarEventID:      j.CalendarEventID,
	}
	if at, ok := j.CompletedAt(); ok {
		s.CompletedAt = &at
	}
	if exp, ok := j.WarrantyExpiration(now); ok {
		s.WarrantyExpiration = &exp
	}
	if days, ok := j.WarrantyDaysRemaining(now); ok {
		s.WarrantyDaysRemaining = &days
	}
	if s.ChecklistItems == nil {
		s.ChecklistItems = []string{}
	}
	return s
}
