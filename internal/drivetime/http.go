package drivetime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	appLog "jobcal/internal/log"
)

// HTTPResolver queries a routing endpoint:
//
//	GET {BaseURL}?origin=...&destination=...
//	200 {"duration_seconds": 1260}
//	404 {"error": "no route"}
type HTTPResolver struct {
	BaseURL string
	client  *http.Client
}

type routeResponse struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	Error           string   `json:"error"`
}

// NewHTTPResolver creates a resolver with a 15s request timeout.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, origin, destination string) (time.Duration, error) {
	if r.BaseURL == "" {
		return 0, &ResolutionError{Reason: "no routing service configured"}
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return 0, &ResolutionError{Reason: "bad routing url", Err: err}
	}
	q := u.Query()
	q.Set("origin", origin)
	q.Set("destination", destination)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, &ResolutionError{Reason: "build request", Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.Wrap(ctx.Err(), "drive time lookup")
		}
		return 0, &ResolutionError{Reason: "routing service unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, &ResolutionError{Reason: "read response", Err: err}
	}

	var rr routeResponse
	_ = json.Unmarshal(body, &rr)

	switch resp.StatusCode {
	case http.StatusOK:
		if rr.DurationSeconds == nil || *rr.DurationSeconds < 0 {
			return 0, &ResolutionError{Reason: "response has no duration"}
		}
		d := time.Duration(*rr.DurationSeconds * float64(time.Second))
		appLog.Debug("drive time resolved", "duration", d.String())
		return d, nil
	case http.StatusNotFound:
		reason := rr.Error
		if reason == "" {
			reason = "no route found"
		}
		return 0, &ResolutionError{Reason: reason}
	default:
		return 0, &ResolutionError{Reason: "routing service error", Err: errors.New(resp.Status)}
	}
}
