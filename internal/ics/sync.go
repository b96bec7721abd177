package ics

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"jobcal/internal/config"
	appLog "jobcal/internal/log"
)

const productID = "-//jobcal//appliance jobs//EN"

// Custom properties carried on every VEVENT so the file can be read back.
const (
	propJobID         ical.ComponentProperty = "X-JOBCAL-JOB-ID"
	propRemindMinutes ical.ComponentProperty = "X-JOBCAL-REMIND-MINUTES"
)

// Event is one synced job event: from departure to estimated return.
type Event struct {
	ID                  string    `json:"id"`
	JobID               string    `json:"job_id"`
	Title               string    `json:"title"`
	Location            string    `json:"location"`
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	RemindMinutesBefore int       `json:"remind_minutes_before"`
}

// UpsertRequest describes the event for a job. ExistingEventID is the id
// from a previous upsert, if the caller has one.
type UpsertRequest struct {
	JobID               string
	Title               string
	Location            string
	Start               time.Time
	End                 time.Time
	RemindMinutesBefore int
	ExistingEventID     string
}

// FileSync keeps job events in a single ICS file. Every write rewrites the
// whole file atomically.
type FileSync struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func NewFileSync(path string) *FileSync {
	return &FileSync{path: path, now: time.Now}
}

// Upsert creates or updates the event for req.JobID and returns its id. An
// existing id is reused when it is still in the file; otherwise any event
// already carrying the job id is reused, so repeated calls never duplicate.
func (s *FileSync) Upsert(ctx context.Context, req UpsertRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.JobID == "" {
		return "", errors.New("calendar upsert: job id is empty")
	}
	if req.End.Before(req.Start) {
		return "", errors.Newf("calendar upsert: end %s before start %s", req.End, req.Start)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return "", err
	}

	id := ""
	if _, ok := events[req.ExistingEventID]; ok && req.ExistingEventID != "" {
		id = req.ExistingEventID
	} else {
		for _, ev := range events {
			if ev.JobID == req.JobID {
				id = ev.ID
				break
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	events[id] = Event{
		ID:                  id,
		JobID:               req.JobID,
		Title:               req.Title,
		Location:            req.Location,
		Start:               req.Start,
		End:                 req.End,
		RemindMinutesBefore: req.RemindMinutesBefore,
	}
	if err := s.save(events); err != nil {
		return "", err
	}
	appLog.Debug("calendar event upserted", "job_id", req.JobID, "event_id", id)
	return id, nil
}

// Remove deletes the event with id. An empty or unknown id is a no-op.
func (s *FileSync) Remove(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := events[id]; !ok {
		return nil
	}
	delete(events, id)
	if err := s.save(events); err != nil {
		return err
	}
	appLog.Debug("calendar event removed", "event_id", id)
	return nil
}

// Events returns the stored events ordered by start.
func (s *FileSync) Events() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedEvents(events), nil
}

// Bytes returns the serialized calendar, or an empty calendar when nothing
// has been synced yet.
func (s *FileSync) Bytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte(s.build(nil).Serialize()), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read calendar file")
	}
	return data, nil
}

func (s *FileSync) load() (map[string]Event, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Event{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read calendar file")
	}
	list, err := ParseEvents(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := make(map[string]Event, len(list))
	for _, ev := range list {
		out[ev.ID] = ev
	}
	return out, nil
}

func (s *FileSync) save(events map[string]Event) error {
	cal := s.build(sortedEvents(events))
	if err := config.WriteFileAtomic(s.path, []byte(cal.Serialize())); err != nil {
		return errors.Wrap(err, "write calendar file")
	}
	return nil
}

func (s *FileSync) build(events []Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := s.now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		ve.SetProperty(propJobID, ev.JobID)
		ve.SetProperty(propRemindMinutes, strconv.Itoa(ev.RemindMinutesBefore))

		if ev.RemindMinutesBefore > 0 {
			alarm := ve.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger("-PT" + strconv.Itoa(ev.RemindMinutesBefore) + "M")
			alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
		}
	}
	return cal
}

func sortedEvents(events map[string]Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
