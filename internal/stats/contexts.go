package stats

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/getsentry/callprof/internal/errorutil"
	"github.com/getsentry/callprof/internal/profiler"
)

type (
	ContextSortKey int

	ContextStats struct {
		Contexts []profiler.ContextStat
	}
)

const (
	ContextByName ContextSortKey = iota
	ContextByID
	ContextByOSID
	ContextByTotalTime
	ContextBySchedCount
)

var contextSortKeyNames = map[string]ContextSortKey{
	"name":       ContextByName,
	"id":         ContextByID,
	"tid":        ContextByOSID,
	"totaltime":  ContextByTotalTime,
	"ttot":       ContextByTotalTime,
	"schedcount": ContextBySchedCount,
	"scnt":       ContextBySchedCount,
}

func ParseContextSortKey(s string) (ContextSortKey, error) {
	k, ok := contextSortKeyNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: sort key %q", errorutil.ErrInvalidArgument, s)
	}
	return k, nil
}

// CollectContexts snapshots the per-context stats, sorted by elapsed time,
// longest first.
func CollectContexts(p *profiler.Profiler) *ContextStats {
	s := &ContextStats{Contexts: p.ContextStats()}
	return s.Sort(ContextByTotalTime, Descending)
}

func (s *ContextStats) Sort(key ContextSortKey, order Order) *ContextStats {
	sort.SliceStable(s.Contexts, func(i, j int) bool {
		a, b := &s.Contexts[i], &s.Contexts[j]
		if order == Descending {
			a, b = b, a
		}
		switch key {
		case ContextByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case ContextByID:
			return a.ID < b.ID
		case ContextByOSID:
			return a.OSID < b.OSID
		case ContextBySchedCount:
			return a.SchedCount < b.SchedCount
		default:
			return a.Elapsed < b.Elapsed
		}
	})
	return s
}

func contextCell(c *profiler.ContextStat) func(string, int) string {
	return func(title string, width int) string {
		switch title {
		case "name":
			return leftTrim(c.Name, width)
		case "id":
			return rightTrim(strconv.FormatUint(c.ID, 10), width)
		case "tid":
			return rightTrim(strconv.FormatInt(c.OSID, 10), width)
		case "ttot":
			return rightTrim(formatSeconds(Seconds(c.Elapsed), width), width)
		case "scnt":
			return rightTrim(strconv.FormatUint(c.SchedCount, 10), width)
		}
		return ""
	}
}

// Print writes a fixed-width table of every context. Nil columns selects
// DefaultContextColumns.
func (s *ContextStats) Print(out io.Writer, columns []Column) error {
	if columns == nil {
		columns = DefaultContextColumns
	}
	if err := validateColumns(columns, contextColumns); err != nil {
		return err
	}
	if len(s.Contexts) == 0 {
		return nil
	}
	w := bufio.NewWriter(out)
	w.WriteString("\n")
	writeHeader(w, columns)
	for i := range s.Contexts {
		writeRow(w, columns, contextCell(&s.Contexts[i]))
	}
	return w.Flush()
}
