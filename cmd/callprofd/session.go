package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"

	"github.com/getsentry/callprof/internal/errorutil"
	"github.com/getsentry/callprof/internal/httputil"
	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/timing"
)

type sessionResponse struct {
	Running    bool                   `json:"running"`
	Paused     bool                   `json:"paused"`
	HasStats   bool                   `json:"has_stats"`
	Clock      string                 `json:"clock"`
	ClockInfo  timing.Info            `json:"clock_info"`
	Options    *profiler.StartOptions `json:"options,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	Usage      profiler.Usage         `json:"usage"`
	ErrorCount map[string]uint64      `json:"error_counts"`
}

func (e *environment) session() sessionResponse {
	p := e.replayer.Profiler()
	resp := sessionResponse{
		Running:    p.IsRunning(),
		Paused:     p.IsPaused(),
		HasStats:   p.HasStats(),
		Clock:      p.ClockType().String(),
		ClockInfo:  p.ClockInfo(),
		Usage:      p.Usage(),
		ErrorCount: make(map[string]uint64),
	}
	if opts, ok := p.StartOptions(); ok {
		startedAt := p.StartedAt()
		resp.Options = &opts
		resp.StartedAt = &startedAt
	}
	for code, n := range p.ErrorCounts() {
		resp.ErrorCount[code.String()] = n
	}
	return resp
}

// writeJSON marshals v as the response body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.marshal")
	b, err := json.Marshal(v)
	s.Finish()
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// writeError maps err to a status code. Unexpected errors go to Sentry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errorutil.ErrProfilerActive), errors.Is(err, errorutil.ErrStatsExist), errors.Is(err, errorutil.ErrClockMismatch):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errorutil.ErrInvalidArgument), errors.Is(err, timing.ErrInvalidClockType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (e *environment) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, e.session())
}

func (e *environment) postSessionStart(w http.ResponseWriter, r *http.Request) {
	builtins, err := httputil.BoolParameter(r, "builtins")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if raw := httputil.QueryParameter(r, "clock", ""); raw != "" {
		clock, err := timing.ParseClockType(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := e.replayer.SetClockType(clock); err != nil {
			writeError(w, r, err)
			return
		}
	}
	e.replayer.Start(builtins)
	writeJSON(w, r, http.StatusOK, e.session())
}

func (e *environment) postSessionStop(w http.ResponseWriter, r *http.Request) {
	e.replayer.Profiler().Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) postSessionPause(w http.ResponseWriter, r *http.Request) {
	e.replayer.Profiler().Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) postSessionResume(w http.ResponseWriter, r *http.Request) {
	e.replayer.Profiler().Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := e.replayer.Profiler().Clear(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
