package drivetime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinutes(t *testing.T) {
	assert.Equal(t, 1, Minutes(0))
	assert.Equal(t, 1, Minutes(30*time.Second))
	assert.Equal(t, 1, Minutes(119*time.Second))
	assert.Equal(t, 2, Minutes(2*time.Minute))
	assert.Equal(t, 21, Minutes(21*time.Minute+59*time.Second))
}

func TestResolveMinutesRejectsBlankAddresses(t *testing.T) {
	r := Static{Duration: time.Hour}
	_, err := ResolveMinutes(context.Background(), r, "  ", "1 Main St")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = ResolveMinutes(context.Background(), r, "Depot", "")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	m, err := ResolveMinutes(context.Background(), r, "Depot", "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, 60, m)
}

func TestResolveMinutesPassesFailures(t *testing.T) {
	r := Static{Err: &ResolutionError{Reason: "no route found"}}
	_, err := ResolveMinutes(context.Background(), r, "a", "b")
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "no route found", re.Reason)
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("destination") {
		case "Lake House":
			_ = json.NewEncoder(w).Encode(map[string]any{"duration_seconds": 1530.5})
		case "Island":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "no route to island"})
		case "Empty":
			_ = json.NewEncoder(w).Encode(map[string]any{})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL)
	ctx := context.Background()

	m, err := ResolveMinutes(ctx, r, "Depot", "Lake House")
	require.NoError(t, err)
	assert.Equal(t, 25, m)

	var re *ResolutionError
	_, err = r.Resolve(ctx, "Depot", "Island")
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "no route to island", re.Reason)

	_, err = r.Resolve(ctx, "Depot", "Empty")
	require.True(t, errors.As(err, &re))

	_, err = r.Resolve(ctx, "Depot", "Elsewhere")
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "routing service error", re.Reason)

	_, err = NewHTTPResolver("").Resolve(ctx, "a", "b")
	assert.Error(t, err)
}

// gatedResolver blocks the first call until released or canceled.
type gatedResolver struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	started chan struct{}
}

func (g *gatedResolver) Resolve(ctx context.Context, _, dest string) (time.Duration, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		select {
		case <-g.release:
			return 10 * time.Minute, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 42 * time.Minute, nil
}

func TestLookupDebounceAppliesOnlyLatest(t *testing.T) {
	l := NewLookup(Static{Duration: 15 * time.Minute}, 30*time.Millisecond)

	var mu sync.Mutex
	var got []Result
	apply := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
	}

	l.Request(context.Background(), "Depot", "1", apply)
	l.Request(context.Background(), "Depot", "12", apply)
	last := l.Request(context.Background(), "Depot", "12 Main", apply)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, last, got[0].Generation)
	assert.Equal(t, 15, got[0].Minutes)
	assert.NoError(t, got[0].Err)
}

func TestLookupDiscardsSupersededInFlight(t *testing.T) {
	g := &gatedResolver{release: make(chan struct{}), started: make(chan struct{})}
	l := NewLookup(g, 0)

	results := make(chan Result, 4)
	apply := func(r Result) { results <- r }

	l.Request(context.Background(), "Depot", "old", apply)
	<-g.started
	second := l.Request(context.Background(), "Depot", "new", apply)
	close(g.release)

	select {
	case r := <-results:
		assert.Equal(t, second, r.Generation)
		assert.Equal(t, 42, r.Minutes)
	case <-time.After(time.Second):
		t.Fatal("no result applied")
	}

	select {
	case r := <-results:
		t.Fatalf("stale result applied: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLookupInvalidInputIsImmediate(t *testing.T) {
	l := NewLookup(Static{Duration: time.Minute}, time.Hour)
	var got Result
	gen := l.Request(context.Background(), "", "somewhere", func(r Result) { got = r })
	assert.Equal(t, gen, got.Generation)
	assert.True(t, errors.Is(got.Err, ErrInvalidInput))
}

func TestLookupCancel(t *testing.T) {
	l := NewLookup(Static{Duration: time.Minute}, 20*time.Millisecond)
	called := make(chan struct{}, 1)
	first := l.Request(context.Background(), "a", "b", func(Result) { called <- struct{}{} })
	l.Cancel()

	select {
	case <-called:
		t.Fatal("canceled lookup applied")
	case <-time.After(80 * time.Millisecond):
	}

	// Cancel consumed a generation of its own.
	next := l.Request(context.Background(), "", "b", func(Result) {})
	assert.Equal(t, first+2, next)
}
