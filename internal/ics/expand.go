package ics

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/teambition/rrule-go"

	appLog "jobcal/internal/log"
)

const defaultMaxOccurrences = 100

// ExpandConfig controls how a recurring series is expanded.
type ExpandConfig struct {
	// RangeEnd is the inclusive upper bound for occurrences.
	RangeEnd time.Time

	// MaxOccurrences caps the expansion. If zero, defaultMaxOccurrences is
	// used.
	MaxOccurrences int
}

// ExpandSeries expands an RRULE anchored at start into concrete instants in
// [start, cfg.RangeEnd], in start's location. The bool result reports
// whether the cap truncated the list.
//
// rule may carry an "RRULE:" prefix.
func ExpandSeries(rule string, start time.Time, cfg ExpandConfig) ([]time.Time, bool, error) {
	if cfg.RangeEnd.Before(start) {
		return nil, false, errors.New("expand: RangeEnd is before start")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, false, errors.Wrapf(err, "expand: parse RRULE %q", rule)
	}
	r.DTStart(start)

	// Iterate lazily: a rule such as FREQ=SECONDLY has no natural end.
	out := make([]time.Time, 0, min(cfg.MaxOccurrences, 16))
	truncated := false
	next := r.Iterator()
	for t, ok := next(); ok; t, ok = next() {
		if t.After(cfg.RangeEnd) {
			break
		}
		if t.Before(start) {
			continue
		}
		if len(out) == cfg.MaxOccurrences {
			truncated = true
			appLog.Info("expand: series truncated", "rrule", rule, "cap", cfg.MaxOccurrences)
			break
		}
		out = append(out, t.In(start.Location()))
	}
	return out, truncated, nil
}
