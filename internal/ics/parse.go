package ics

import (
	"io"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"
	"github.com/cockroachdb/errors"

	appLog "jobcal/internal/log"
)

// ParseEvents reads the VEVENTs written by FileSync. Events without a UID
// are skipped; a missing or malformed reminder property reads as zero.
func ParseEvents(r io.Reader) ([]Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse calendar")
	}

	events := make([]Event, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, error) {
	var out Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(propJobID); p != nil {
		out.JobID = p.Value
	}
	if p := ve.GetProperty(propRemindMinutes); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.RemindMinutesBefore = n
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, errors.Wrapf(err, "event %s: DTSTART", out.ID)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, errors.Wrapf(err, "event %s: DTEND", out.ID)
	}
	out.Start = start
	out.End = end

	return out, nil
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

// unescapeText undoes RFC 5545 TEXT escaping left in property values.
func unescapeText(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return textUnescaper.Replace(v)
}
