package stats

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/getsentry/callprof/internal/errorutil"
	"github.com/getsentry/callprof/internal/storageutil"
	"github.com/getsentry/callprof/internal/timing"
)

type (
	// Snapshot is the persisted form of FuncStats.
	Snapshot struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Clock     string    `json:"clock"`
		Funcs     []*Func   `json:"funcs"`
	}

	// Row is one function of a snapshot as stored in BigQuery.
	Row struct {
		SnapshotID string
		CreatedAt  time.Time
		Clock      timing.ClockType
		Func       *Func
	}
)

// Snapshot captures s under id.
func (s *FuncStats) Snapshot(id string, now time.Time) Snapshot {
	return Snapshot{
		ID:        id,
		CreatedAt: now,
		Clock:     s.ClockType.String(),
		Funcs:     s.Funcs,
	}
}

// Stats rebuilds FuncStats from a snapshot, sorted by total time.
func (sn Snapshot) Stats() (*FuncStats, error) {
	clock, err := timing.ParseClockType(sn.Clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorutil.ErrDataIntegrity, err)
	}
	s := newFuncStats(clock)
	for _, f := range sn.Funcs {
		if f == nil {
			continue
		}
		if _, ok := s.byName[f.FullName]; ok {
			return nil, fmt.Errorf("%w: duplicate function %q", errorutil.ErrDataIntegrity, f.FullName)
		}
		s.append(f)
	}
	return s.Sort(ByTotalTime, Descending), nil
}

// Rows flattens the snapshot for a BigQuery inserter.
func (sn Snapshot) Rows() ([]*Row, error) {
	clock, err := timing.ParseClockType(sn.Clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorutil.ErrDataIntegrity, err)
	}
	rows := make([]*Row, 0, len(sn.Funcs))
	for _, f := range sn.Funcs {
		rows = append(rows, &Row{
			SnapshotID: sn.ID,
			CreatedAt:  sn.CreatedAt,
			Clock:      clock,
			Func:       f,
		})
	}
	return rows, nil
}

// Save writes the snapshot lz4-compressed under name.
func (sn Snapshot) Save(ctx context.Context, h storageutil.ObjectHandler, name string) error {
	return storageutil.CompressedWrite(ctx, h, name, sn)
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(ctx context.Context, h storageutil.ObjectHandler, name string) (Snapshot, error) {
	var sn Snapshot
	err := storageutil.UnmarshalCompressed(ctx, h, name, &sn)
	return sn, err
}

func (r *Row) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"snapshot_id":             r.SnapshotID,
		"created_at":              r.CreatedAt,
		"clock":                   r.Clock.String(),
		"full_name":               r.Func.FullName,
		"name":                    r.Func.Name,
		"module":                  r.Func.Module,
		"line":                    r.Func.Line,
		"native":                  r.Func.Native,
		"call_count":              int64(r.Func.CallCount),
		"nonrecursive_call_count": int64(r.Func.NonRecursiveCallCount),
		"total_time_ns":           r.Func.TotalTime,
		"self_time_ns":            r.Func.SelfTime,
		"avg_time_ns":             r.Func.AvgTime(),
	}, bigquery.NoDedupeID, nil
}
