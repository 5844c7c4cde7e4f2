package main

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/getsentry/callprof/internal/replay"
)

type postEventsResponse struct {
	Events int `json:"events"`
}

// postEvents applies a recorded event stream to the session. Events before
// a malformed one stay applied.
func (e *environment) postEvents(w http.ResponseWriter, r *http.Request) {
	defer e.self.Func()()
	ctx := r.Context()

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Replay events"
	n, err := e.replayer.Run(ctx, r.Body)
	s.Finish()
	if err != nil {
		if errors.Is(err, replay.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			writeError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, postEventsResponse{Events: n})
}
