package drivetime

import (
	"context"
	"sync"
	"time"

	appLog "jobcal/internal/log"
)

// Result is the outcome of one lookup request.
type Result struct {
	Generation uint64
	Minutes    int
	Err        error
}

// Lookup debounces drive-time requests for a single field. Every Request
// bumps a generation counter, stops a pending timer and cancels an in-flight
// resolution. A finished lookup is applied only if its generation is still
// the latest; older completions are dropped.
type Lookup struct {
	resolver Resolver
	debounce time.Duration

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

func NewLookup(r Resolver, debounce time.Duration) *Lookup {
	return &Lookup{resolver: r, debounce: debounce}
}

// Request schedules a lookup after the debounce delay and returns its
// generation. Invalid addresses are reported to apply immediately. apply is
// called with the Lookup locked and must not call back into it.
func (l *Lookup) Request(ctx context.Context, origin, destination string, apply func(Result)) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.supersedeLocked()
	gen := l.gen

	if err := ValidateAddresses(origin, destination); err != nil {
		apply(Result{Generation: gen, Err: err})
		return gen
	}

	rctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.timer = time.AfterFunc(l.debounce, func() {
		mins, err := ResolveMinutes(rctx, l.resolver, origin, destination)
		cancel()

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			appLog.Debug("drive time result superseded", "generation", gen, "latest", l.gen)
			return
		}
		apply(Result{Generation: gen, Minutes: mins, Err: err})
	})
	return gen
}

// Cancel drops any pending or in-flight lookup.
func (l *Lookup) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supersedeLocked()
}

func (l *Lookup) supersedeLocked() {
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
