package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/callprof/internal/httputil"
	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/stats"
	"github.com/getsentry/callprof/internal/storageutil"
)

const snapshotsPrefix = "snapshots/"

type postSnapshotResponse struct {
	ID         string `json:"snapshot_id"`
	ObjectName string `json:"object_name"`
	Functions  int    `json:"functions"`
}

func snapshotObjectName(id string) string {
	return snapshotsPrefix + id
}

func (e *environment) postSnapshot(w http.ResponseWriter, r *http.Request) {
	defer e.self.Func()()
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Collect function stats"
	sn := stats.Collect(e.replayer.Profiler(), profiler.Filter{}).Snapshot(uuid.New().String(), time.Now().UTC())
	s.Finish()

	if hub != nil {
		hub.Scope().SetTag("snapshot_id", sn.ID)
	}

	objectName := snapshotObjectName(sn.ID)
	s = sentry.StartSpan(ctx, "blob.write")
	s.Description = "Write snapshot to the bucket"
	err := sn.Save(ctx, e.snapshots, objectName)
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// This is a transient error, we'll retry
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			writeError(w, r, err)
		}
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal snapshot Kafka message"
	b, err := json.Marshal(buildSnapshotKafkaMessage(sn, objectName, e.config.Environment))
	s.Finish()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Send snapshot to Kafka"
	err = e.snapshotsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sn.ID),
		Value: b,
	})
	s.Finish()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if e.snapshotsInserter != nil {
		s = sentry.StartSpan(ctx, "bigquery.insert")
		rows, err := sn.Rows()
		if err == nil {
			err = e.snapshotsInserter.Put(ctx, rows)
		}
		s.Finish()
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, r, http.StatusCreated, postSnapshotResponse{
		ID:         sn.ID,
		ObjectName: objectName,
		Functions:  len(sn.Funcs),
	})
}

// loadSnapshot writes 400 for a malformed id and 404 for an unknown one.
func (e *environment) loadSnapshot(w http.ResponseWriter, r *http.Request, rawID string) (*stats.FuncStats, bool) {
	defer e.self.Func()()
	ctx := r.Context()
	id, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, "malformed snapshot id "+rawID, http.StatusBadRequest)
		return nil, false
	}

	s := sentry.StartSpan(ctx, "blob.read")
	s.Description = "Read snapshot from the bucket"
	sn, err := stats.LoadSnapshot(ctx, e.snapshots, snapshotObjectName(id.String()))
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			writeError(w, r, err)
		}
		return nil, false
	}
	fs, err := sn.Stats()
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return fs, true
}

func (e *environment) getSnapshot(w http.ResponseWriter, r *http.Request) {
	ps := httprouter.ParamsFromContext(r.Context())
	fs, ok := e.loadSnapshot(w, r, ps.ByName("snapshot_id"))
	if !ok {
		return
	}
	writeStats(w, r, fs)
}

// getMergedSnapshots folds every snapshot listed in the ids parameter into
// the first one.
func (e *environment) getMergedSnapshots(w http.ResponseWriter, r *http.Request) {
	params, logger, ok := httputil.GetRequiredQueryParameters(w, r, "ids")
	if !ok {
		return
	}
	var merged *stats.FuncStats
	for _, id := range strings.Split(params["ids"], ",") {
		fs, ok := e.loadSnapshot(w, r, strings.TrimSpace(id))
		if !ok {
			return
		}
		if merged == nil {
			merged = fs
			continue
		}
		if err := merged.Merge(fs); err != nil {
			logger.Warn().Err(err).Str("snapshot_id", id).Msg("can't merge snapshot")
			writeError(w, r, err)
			return
		}
	}
	writeStats(w, r, merged)
}
