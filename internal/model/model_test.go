package model

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcal/internal/checklist"
)

func TestNew(t *testing.T) {
	j, err := New(Fields{Type: Pickup, Title: "Old washer", NumberOfPeople: -3})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, 1, j.People())
	assert.False(t, j.IsCompleted())
	_, ok := j.CompletedAt()
	assert.False(t, ok)

	other, err := New(Fields{Type: Delivery})
	require.NoError(t, err)
	assert.NotEqual(t, j.ID, other.ID)
}

func TestNewRejectsInstallation(t *testing.T) {
	_, err := New(Fields{Type: Installation})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCreatable))
}

func TestSetPeopleClamps(t *testing.T) {
	j, err := New(Fields{Type: Delivery, NumberOfPeople: 2})
	require.NoError(t, err)
	j.SetPeople(0)
	assert.Equal(t, 1, j.People())
	j.SetPeople(4)
	assert.Equal(t, 4, j.People())
}

func TestHasAddress(t *testing.T) {
	j := &Job{}
	assert.False(t, j.HasAddress())
	j.Address = "   \t"
	assert.False(t, j.HasAddress())
	j.Address = "12 Main St"
	assert.True(t, j.HasAddress())
}

func TestNormalizeForEdit(t *testing.T) {
	j := Restore(Snapshot{ID: "legacy", Type: Installation, NumberOfPeople: 2})
	assert.True(t, j.NormalizeForEdit())
	assert.Equal(t, Delivery, j.Type)
	assert.True(t, j.IncludesInstallation)
	assert.False(t, j.NormalizeForEdit())
}

func TestToggleItemIsInvolution(t *testing.T) {
	j, err := New(Fields{Type: Delivery})
	require.NoError(t, err)
	j.ToggleItem("Take photos")
	before := j.CheckedItems()

	j.ToggleItem("Load appliance onto truck")
	assert.True(t, j.IsItemChecked("Load appliance onto truck"))
	j.ToggleItem("Load appliance onto truck")
	assert.False(t, j.IsItemChecked("Load appliance onto truck"))
	assert.Equal(t, before, j.CheckedItems())
}

func TestChecklistProgress(t *testing.T) {
	j, err := New(Fields{Type: Delivery, IncludesInstallation: true})
	require.NoError(t, err)
	assert.Equal(t, 0.0, j.ChecklistProgress())

	total := len(checklist.AllItems(checklist.Config{Kind: "Delivery", IncludesInstallation: true}))
	j.ToggleItem("Take photos")
	assert.InDelta(t, 2.0/float64(total), j.ChecklistProgress(), 1e-9)

	for _, name := range j.ChecklistItems() {
		if !j.IsItemChecked(name) {
			j.ToggleItem(name)
		}
	}
	assert.Equal(t, 1.0, j.ChecklistProgress())
}

func TestCompletionFromLegacy(t *testing.T) {
	at := anchor
	yes, no := true, false

	done, when := CompletionFromLegacy(nil, nil)
	assert.False(t, done)
	assert.True(t, when.IsZero())

	done, _ = CompletionFromLegacy(&no, &at)
	assert.False(t, done)

	done, _ = CompletionFromLegacy(&yes, nil)
	assert.False(t, done)

	done, when = CompletionFromLegacy(&yes, &at)
	assert.True(t, done)
	assert.Equal(t, at, when)
}

func TestSnapshotRoundTrip(t *testing.T) {
	j, err := New(Fields{
		Type:             Delivery,
		Title:            "Dishwasher",
		Address:          "1 Elm St",
		ScheduledDate:    anchor,
		DriveTimeMinutes: 25,
		NumberOfPeople:   2,
		PostTinkering:    true,
	})
	require.NoError(t, err)
	j.ToggleItem("Take photos")
	j.ToggleItem("a stale name")
	j.MarkCompleted(anchor.Add(time.Hour))
	j.CalendarEventID = "evt-1"

	s := j.Snapshot()
	require.NotNil(t, s.Completed)
	assert.True(t, *s.Completed)
	require.NotNil(t, s.CompletedAt)

	back := Restore(s)
	assert.Equal(t, j.Summarize(anchor), back.Summarize(anchor))
	assert.True(t, back.IsItemChecked("a stale name"))
}

func TestSummarize(t *testing.T) {
	j, err := New(Fields{Type: Delivery, Title: "Range", ScheduledDate: anchor, DriveTimeMinutes: 30, NumberOfPeople: 1})
	require.NoError(t, err)

	s := j.Summarize(anchor.Add(-3 * time.Hour))
	assert.Equal(t, StatusUpcoming, s.Status)
	assert.Equal(t, "1h 30m", s.Duration)
	assert.Equal(t, "30m", s.DriveTime)
	assert.Nil(t, s.WarrantyExpiration)
	assert.Nil(t, s.WarrantyDaysRemaining)
	assert.Len(t, s.ChecklistItems, len(checklist.AllItems(checklist.Config{Kind: "Delivery"})))

	later := j.Summarize(anchor.AddDate(0, 0, 1))
	assert.Equal(t, StatusCompleted, later.Status)
	require.NotNil(t, later.WarrantyDaysRemaining)
	assert.Equal(t, 29, *later.WarrantyDaysRemaining)
}
