// Package drivetime resolves one-way drive times between two addresses.
package drivetime

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidInput is returned when an address is empty or whitespace.
var ErrInvalidInput = errors.New("address is required")

// ResolutionError reports an address lookup or routing failure.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("drive time lookup failed: %s: %v", e.Reason, e.Err)
	}
	return "drive time lookup failed: " + e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver estimates travel time between two addresses.
type Resolver interface {
	Resolve(ctx context.Context, origin, destination string) (time.Duration, error)
}

// ValidateAddresses rejects empty or whitespace-only addresses.
func ValidateAddresses(origin, destination string) error {
	if strings.TrimSpace(origin) == "" {
		return errors.WithHint(errors.Wrap(ErrInvalidInput, "origin"), "set a home address first")
	}
	if strings.TrimSpace(destination) == "" {
		return errors.Wrap(ErrInvalidInput, "destination")
	}
	return nil
}

// Minutes floors d to whole minutes, with a minimum of 1.
func Minutes(d time.Duration) int {
	m := int(math.Floor(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// ResolveMinutes validates both addresses, resolves, and converts the result
// with Minutes.
func ResolveMinutes(ctx context.Context, r Resolver, origin, destination string) (int, error) {
	if err := ValidateAddresses(origin, destination); err != nil {
		return 0, err
	}
	d, err := r.Resolve(ctx, strings.TrimSpace(origin), strings.TrimSpace(destination))
	if err != nil {
		return 0, err
	}
	return Minutes(d), nil
}

// Static resolves every pair to the same duration, or to Err when set.
type Static struct {
	Duration time.Duration
	Err      error
}

func (s Static) Resolve(_ context.Context, _, _ string) (time.Duration, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Duration, nil
}
