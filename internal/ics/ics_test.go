package ics

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 5, 5, 8, 15, 0, 0, time.UTC)

func newTestSync(t *testing.T) *FileSync {
	t.Helper()
	s := NewFileSync(filepath.Join(t.TempDir(), "cal", "jobs.ics"))
	s.now = func() time.Time { return start }
	return s
}

func TestUpsertCreatesAndReuses(t *testing.T) {
	ctx := context.Background()
	s := newTestSync(t)

	req := UpsertRequest{
		JobID:               "job-1",
		Title:               "Fridge delivery",
		Location:            "9 Pine Rd",
		Start:               start,
		End:                 start.Add(90 * time.Minute),
		RemindMinutesBefore: 60,
	}
	id, err := s.Upsert(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	req.ExistingEventID = id
	req.End = start.Add(2 * time.Hour)
	again, err := s.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// Lost id: the job id still finds the event.
	req.ExistingEventID = ""
	third, err := s.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, id, third)

	events, err := s.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "Fridge delivery", ev.Title)
	assert.Equal(t, "9 Pine Rd", ev.Location)
	assert.True(t, ev.Start.Equal(start))
	assert.True(t, ev.End.Equal(start.Add(2*time.Hour)))
	assert.Equal(t, 60, ev.RemindMinutesBefore)
}

func TestUpsertWritesAlarm(t *testing.T) {
	s := newTestSync(t)
	_, err := s.Upsert(context.Background(), UpsertRequest{
		JobID: "job-2", Title: "Pickup", Start: start, End: start.Add(time.Hour), RemindMinutesBefore: 45,
	})
	require.NoError(t, err)

	data, err := s.Bytes()
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "BEGIN:VALARM")
	assert.Contains(t, body, "-PT45M")
	assert.Contains(t, body, "X-JOBCAL-JOB-ID:job-2")
}

func TestUpsertValidation(t *testing.T) {
	s := newTestSync(t)
	_, err := s.Upsert(context.Background(), UpsertRequest{Start: start, End: start})
	assert.Error(t, err)
	_, err = s.Upsert(context.Background(), UpsertRequest{JobID: "x", Start: start, End: start.Add(-time.Minute)})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Upsert(ctx, UpsertRequest{JobID: "x", Start: start, End: start})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestSync(t)

	a, err := s.Upsert(ctx, UpsertRequest{JobID: "a", Title: "A", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, UpsertRequest{JobID: "b", Title: "B", Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, ""))
	require.NoError(t, s.Remove(ctx, "unknown"))
	require.NoError(t, s.Remove(ctx, a))

	events, err := s.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].JobID)
}

func TestBytesBeforeFirstWrite(t *testing.T) {
	s := newTestSync(t)
	data, err := s.Bytes()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "BEGIN:VCALENDAR"))

	events, err := s.Events()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseEventsSkipsMissingUID(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:test",
		"BEGIN:VEVENT",
		"DTSTART:20250505T081500Z",
		"DTEND:20250505T091500Z",
		"SUMMARY:orphan",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:keep",
		"DTSTART:20250505T081500Z",
		"DTEND:20250505T091500Z",
		"SUMMARY:Washer\\, dryer",
		"X-JOBCAL-REMIND-MINUTES:abc",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	events, err := ParseEvents(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "keep", events[0].ID)
	assert.Equal(t, "Washer, dryer", events[0].Title)
	assert.Zero(t, events[0].RemindMinutesBefore)
}

func TestExpandSeries(t *testing.T) {
	got, truncated, err := ExpandSeries("RRULE:FREQ=WEEKLY;BYDAY=MO", start, ExpandConfig{RangeEnd: start.AddDate(0, 0, 21)})
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, got, 4)
	assert.True(t, got[0].Equal(start))
	assert.True(t, got[3].Equal(start.AddDate(0, 0, 21)))
}

func TestExpandSeriesCap(t *testing.T) {
	got, truncated, err := ExpandSeries("FREQ=DAILY", start, ExpandConfig{RangeEnd: start.AddDate(1, 0, 0), MaxOccurrences: 5})
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, got, 5)
}

func TestExpandSeriesErrors(t *testing.T) {
	_, _, err := ExpandSeries("FREQ=NEVER", start, ExpandConfig{RangeEnd: start.AddDate(0, 1, 0)})
	assert.Error(t, err)
	_, _, err = ExpandSeries("FREQ=DAILY", start, ExpandConfig{RangeEnd: start.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestExpandSeriesStopsAtCap(t *testing.T) {
	began := time.Now()
	got, truncated, err := ExpandSeries("FREQ=SECONDLY", start, ExpandConfig{RangeEnd: start.AddDate(100, 0, 0)})
	require.NoError(t, err)
	assert.True(t, truncated)
	require.Len(t, got, defaultMaxOccurrences)
	assert.True(t, got[99].Equal(start.Add(99*time.Second)))
	assert.Less(t, time.Since(began), 2*time.Second)
}

func TestExpandSeriesExactlyAtCap(t *testing.T) {
	got, truncated, err := ExpandSeries("FREQ=DAILY;COUNT=5", start, ExpandConfig{RangeEnd: start.AddDate(1, 0, 0), MaxOccurrences: 5})
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, got, 5)
}
