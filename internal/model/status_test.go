package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliveryAt(t *testing.T, scheduled time.Time) *Job {
	t.Helper()
	j, err := New(Fields{Type: Delivery, Title: "Fridge", ScheduledDate: scheduled, DriveTimeMinutes: 30, NumberOfPeople: 1})
	require.NoError(t, err)
	return j
}

func TestStatusTransitions(t *testing.T) {
	j := deliveryAt(t, anchor)
	dep := j.DepartureTime()
	ret := j.EstimatedReturnTime()

	assert.Equal(t, StatusUpcoming, j.Status(dep.Add(-time.Second)))
	assert.Equal(t, StatusInProgress, j.Status(dep))
	assert.Equal(t, StatusInProgress, j.Status(ret.Add(-time.Second)))
	assert.Equal(t, StatusCompleted, j.Status(ret))
	assert.False(t, j.IsCompleted(), "time-based completion is not persisted")
}

func TestManualCompletionWins(t *testing.T) {
	j := deliveryAt(t, anchor)
	early := anchor.Add(-24 * time.Hour)
	j.MarkCompleted(early)

	assert.Equal(t, StatusCompleted, j.Status(early))
	at, ok := j.CompletedAt()
	require.True(t, ok)
	assert.Equal(t, early, at)

	later := early.Add(time.Hour)
	id := j.ID
	j.MarkCompleted(later)
	at, _ = j.CompletedAt()
	assert.Equal(t, later, at)
	assert.Equal(t, id, j.ID)
}

func TestStatusAt(t *testing.T) {
	dep := anchor
	ret := anchor.Add(time.Hour)
	assert.Equal(t, StatusCompleted, StatusAt(anchor.Add(-time.Hour), true, dep, ret))
	assert.Equal(t, StatusUpcoming, StatusAt(anchor.Add(-time.Minute), false, dep, ret))
	assert.Equal(t, StatusInProgress, StatusAt(anchor.Add(time.Minute), false, dep, ret))
	assert.Equal(t, StatusCompleted, StatusAt(ret.Add(time.Minute), false, dep, ret))
}

func TestWarrantyFromManualCompletion(t *testing.T) {
	j := deliveryAt(t, anchor)
	done := anchor.Add(2 * time.Hour)
	j.MarkCompleted(done)

	exp, ok := j.WarrantyExpiration(done)
	require.True(t, ok)
	assert.Equal(t, done.AddDate(0, 0, 30), exp)

	days, ok := j.WarrantyDaysRemaining(done)
	require.True(t, ok)
	assert.Equal(t, 30, days)
	assert.False(t, j.IsWarrantyExpired(done))

	days, _ = j.WarrantyDaysRemaining(done.AddDate(0, 0, 10).Add(time.Hour))
	assert.Equal(t, 19, days)

	after := exp.Add(time.Minute)
	days, ok = j.WarrantyDaysRemaining(after)
	require.True(t, ok)
	assert.Equal(t, 0, days)
	assert.True(t, j.IsWarrantyExpired(after))
}

func TestWarrantyFromReturnTime(t *testing.T) {
	j := deliveryAt(t, anchor)
	ret := j.EstimatedReturnTime()

	_, ok := j.WarrantyExpiration(ret.Add(-time.Minute))
	assert.False(t, ok, "not defined before completion")
	_, ok = j.WarrantyDaysRemaining(ret.Add(-time.Minute))
	assert.False(t, ok)
	assert.False(t, j.IsWarrantyExpired(ret.Add(-time.Minute)))

	exp, ok := j.WarrantyExpiration(ret.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, ret.AddDate(0, 0, 30), exp)
}

func TestWarrantyOnlyForDelivery(t *testing.T) {
	p, err := New(Fields{Type: Pickup, ScheduledDate: anchor, DriveTimeMinutes: 10, NumberOfPeople: 1})
	require.NoError(t, err)
	p.MarkCompleted(anchor)
	_, ok := p.WarrantyExpiration(anchor)
	assert.False(t, ok)
	assert.False(t, p.IsWarrantyExpired(anchor.AddDate(1, 0, 0)))

	legacy := Restore(Snapshot{Type: Installation, ScheduledDate: anchor, NumberOfPeople: 1})
	_, ok = legacy.WarrantyExpiration(anchor.AddDate(0, 1, 0))
	assert.False(t, ok)
	legacy.NormalizeForEdit()
	_, ok = legacy.WarrantyExpiration(anchor.AddDate(0, 1, 0))
	assert.True(t, ok)
}

func TestWholeDays(t *testing.T) {
	base := time.Date(2025, 4, 7, 6, 0, 0, 0, time.UTC)
	cases := []struct {
		to   time.Time
		want int
	}{
		{base, 0},
		{base.Add(23 * time.Hour), 0},
		{base.Add(24 * time.Hour), 1},
		{base.Add(29*24*time.Hour + time.Hour), 29},
		{base.Add(29*24*time.Hour + 23*time.Hour), 29},
		{base.Add(-25 * time.Hour), -1},
		{base.Add(-23 * time.Hour), 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, wholeDays(base, c.to), c.to.String())
	}
}

func TestWarrantyDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	// Clocks spring forward on 2025-03-09, inside the window.
	done := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)
	j := deliveryAt(t, done.Add(-2*time.Hour))
	j.MarkCompleted(done)

	exp, ok := j.WarrantyExpiration(done)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 31, 12, 0, 0, 0, loc), exp)
	assert.Less(t, exp.Sub(done), 30*24*time.Hour)

	days, ok := j.WarrantyDaysRemaining(done)
	require.True(t, ok)
	assert.Equal(t, 30, days)

	days, _ = j.WarrantyDaysRemaining(time.Date(2025, 3, 30, 12, 0, 0, 0, loc))
	assert.Equal(t, 1, days)
	assert.True(t, j.IsWarrantyExpired(exp))
}
