package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"jobcal/internal/config"
	"jobcal/internal/drivetime"
	"jobcal/internal/ics"
	appLog "jobcal/internal/log"
	"jobcal/internal/model"
	"jobcal/internal/planner"
	"jobcal/internal/store"
)

const (
	maxBodyBytes       = 1 << 20
	defaultSeriesRange = 90 // days
)

// CalendarFeed renders the synced calendar as ICS bytes or as its parsed
// events.
type CalendarFeed interface {
	Bytes() ([]byte, error)
	Events() ([]ics.Event, error)
}

// errInvalidField marks update bodies that fail validation.
var errInvalidField = errors.New("invalid field")

// Server exposes jobs over a JSON API plus the ICS feed.
type Server struct {
	cfg     *config.Config
	cfgPath string
	planner *planner.Planner
	feed    CalendarFeed
	mux     *http.ServeMux
}

// NewServer constructs a new Server. cfgPath is where home address edits are
// persisted; empty keeps them in memory only.
func NewServer(cfg *config.Config, cfgPath string, p *planner.Planner, feed CalendarFeed) *Server {
	s := &Server{
		cfg:     cfg,
		cfgPath: cfgPath,
		planner: p,
		feed:    feed,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Half-configured credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="jobcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /api/calendar/events", s.handleCalendarEvents)

	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("PUT /api/jobs/{id}", s.handleUpdateJob)
	s.mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	s.mux.HandleFunc("POST /api/jobs/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /api/jobs/{id}/checklist/toggle", s.handleToggle)
	s.mux.HandleFunc("POST /api/jobs/{id}/drivetime", s.handleDriveTime)
	s.mux.HandleFunc("PUT /api/jobs/{id}/address", s.handleAddress)
	s.mux.HandleFunc("GET /api/jobs/{id}/reminders", s.handleReminders)

	s.mux.HandleFunc("GET /api/home", s.handleGetHome)
	s.mux.HandleFunc("PUT /api/home", s.handlePutHome)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the synced ICS file so calendar apps can subscribe.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	data, err := s.feed.Bytes()
	if err != nil {
		appLog.Error("calendar feed failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleCalendarEvents(w http.ResponseWriter, _ *http.Request) {
	events, err := s.feed.Events()
	if err != nil {
		appLog.Error("calendar events failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	if events == nil {
		events = []ics.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleListJobs returns job summaries ordered by scheduled date.
//
// GET /api/jobs?status=upcoming&limit=20
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.planner.List(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	q := r.URL.Query()
	status := model.Status(q.Get("status"))
	limit := parseIntDefault(q.Get("limit"), 0)

	now := s.planner.Now()
	out := make([]model.Summary, 0, len(jobs))
	for _, j := range jobs {
		sum := j.Summarize(now)
		if status != "" && sum.Status != status {
			continue
		}
		out = append(out, sum)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// createRequest is the JSON body for POST /api/jobs. A non-empty RRule
// creates one job per occurrence up to Until.
type createRequest struct {
	Type                 model.JobType `json:"type"`
	Title                string        `json:"title"`
	Address              string        `json:"address"`
	ScheduledDate        time.Time     `json:"scheduled_date"`
	DriveTimeMinutes     int           `json:"drive_time_minutes"`
	NumberOfPeople       int           `json:"number_of_people"`
	IncludesInstallation bool          `json:"includes_installation"`
	PostTinkering        bool          `json:"post_tinkering"`
	RRule                string        `json:"rrule,omitempty"`
	Until                *time.Time    `json:"until,omitempty"`
}

func (req createRequest) fields() model.Fields {
	return model.Fields{
		Type:                 req.Type,
		Title:                strings.TrimSpace(req.Title),
		Address:              req.Address,
		ScheduledDate:        req.ScheduledDate,
		DriveTimeMinutes:     req.DriveTimeMinutes,
		NumberOfPeople:       req.NumberOfPeople,
		IncludesInstallation: req.IncludesInstallation,
		PostTinkering:        req.PostTinkering,
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.ScheduledDate.IsZero() {
		writeError(w, http.StatusBadRequest, "title and scheduled_date are required")
		return
	}
	if req.DriveTimeMinutes < 0 {
		writeError(w, http.StatusBadRequest, "drive_time_minutes must not be negative")
		return
	}
	if !req.Type.Creatable() {
		writeError(w, http.StatusBadRequest, "type must be Delivery or Pickup")
		return
	}

	now := s.planner.Now()
	if req.RRule == "" {
		j, err := s.planner.Create(r.Context(), req.fields())
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, j.Summarize(now))
		return
	}

	until := req.ScheduledDate.AddDate(0, 0, defaultSeriesRange)
	if req.Until != nil {
		until = *req.Until
	}
	jobs, err := s.planner.CreateSeries(r.Context(), req.fields(), req.RRule, until)
	if err != nil && len(jobs) == 0 {
		s.writeFailure(w, err)
		return
	}
	if err != nil {
		appLog.Error("series partially created", err, "created", len(jobs))
	}
	out := make([]model.Summary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Summarize(now))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.planner.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Summarize(s.planner.Now()))
}

// updateRequest carries the fields to change; absent fields are kept.
type updateRequest struct {
	Type                 *model.JobType `json:"type,omitempty"`
	Title                *string        `json:"title,omitempty"`
	Address              *string        `json:"address,omitempty"`
	ScheduledDate        *time.Time     `json:"scheduled_date,omitempty"`
	DriveTimeMinutes     *int           `json:"drive_time_minutes,omitempty"`
	NumberOfPeople       *int           `json:"number_of_people,omitempty"`
	IncludesInstallation *bool          `json:"includes_installation,omitempty"`
	PostTinkering        *bool          `json:"post_tinkering,omitempty"`
}

func (req updateRequest) apply(j *model.Job) error {
	if req.Type != nil {
		if !req.Type.Valid() {
			return errors.Mark(errors.Newf("unknown type %q", *req.Type), errInvalidField)
		}
		j.Type = *req.Type
	}
	if req.Title != nil {
		j.Title = strings.TrimSpace(*req.Title)
	}
	if req.Address != nil {
		j.Address = *req.Address
	}
	if req.ScheduledDate != nil {
		j.ScheduledDate = *req.ScheduledDate
	}
	if req.DriveTimeMinutes != nil {
		if *req.DriveTimeMinutes < 0 {
			return errors.Mark(errors.New("drive_time_minutes must not be negative"), errInvalidField)
		}
		j.DriveTimeMinutes = *req.DriveTimeMinutes
	}
	if req.NumberOfPeople != nil {
		j.SetPeople(*req.NumberOfPeople)
	}
	if req.IncludesInstallation != nil {
		j.IncludesInstallation = *req.IncludesInstallation
	}
	if req.PostTinkering != nil {
		j.PostTinkering = *req.PostTinkering
	}
	return nil
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	j, err := s.planner.Update(r.Context(), r.PathValue("id"), req.apply)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Summarize(s.planner.Now()))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	j, err := s.planner.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Summarize(s.planner.Now()))
}

type toggleRequest struct {
	Item string `json:"item"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Item == "" {
		writeError(w, http.StatusBadRequest, "item is required")
		return
	}
	j, err := s.planner.ToggleItem(r.Context(), r.PathValue("id"), req.Item)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Summarize(s.planner.Now()))
}

// handleDriveTime resolves home -> job address synchronously.
func (s *Server) handleDriveTime(w http.ResponseWriter, r *http.Request) {
	j, err := s.planner.RefreshDriveTime(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Summarize(s.planner.Now()))
}

type addressRequest struct {
	Address string `json:"address"`
}

type addressResponse struct {
	Job        model.Summary `json:"job"`
	Generation uint64        `json:"lookup_generation"`
}

// handleAddress saves the address and answers 202; the drive time follows
// once the debounced lookup settles.
func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	j, gen, err := s.planner.SetAddress(r.Context(), r.PathValue("id"), req.Address)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, addressResponse{Job: j.Summarize(s.planner.Now()), Generation: gen})
}

// handleReminders lists the job's pending reminders; completed jobs have
// none.
func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	rs, err := s.planner.Reminders(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

type homeResponse struct {
	Address string `json:"address"`
	Set     bool   `json:"set"`
}

func (s *Server) handleGetHome(w http.ResponseWriter, _ *http.Request) {
	addr, ok := s.cfg.Home()
	writeJSON(w, http.StatusOK, homeResponse{Address: addr, Set: ok})
}

func (s *Server) handlePutHome(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.cfg.SetHomeAddress(req.Address)
	if s.cfgPath != "" {
		if err := s.cfg.Save(s.cfgPath); err != nil {
			appLog.Error("failed to save home address", err, "config_path", s.cfgPath)
			writeError(w, http.StatusInternalServerError, "failed to save config")
			return
		}
	}
	addr, ok := s.cfg.Home()
	appLog.Info("home address updated", "set", ok)
	writeJSON(w, http.StatusOK, homeResponse{Address: addr, Set: ok})
}

// writeFailure maps domain errors onto HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var re *drivetime.ResolutionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, model.ErrNotCreatable), errors.Is(err, drivetime.ErrInvalidInput),
		errors.Is(err, errInvalidField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &re):
		writeError(w, http.StatusBadGateway, re.Reason)
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
