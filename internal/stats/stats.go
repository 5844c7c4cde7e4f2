// Package stats turns raw profiler records into per-function reports that
// can be sorted, merged across sessions, printed and exported.
package stats

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/callprof/internal/errorutil"
	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/timing"
)

type (
	SortKey int
	Order   int

	// Func aggregates every record sharing the same full name, whatever
	// context or tag it was recorded under.
	Func struct {
		Name                  string  `json:"name"`
		Module                string  `json:"module"`
		Line                  int     `json:"line"`
		Native                bool    `json:"native"`
		FullName              string  `json:"full_name"`
		Index                 uint32  `json:"index"`
		CallCount             uint64  `json:"call_count"`
		NonRecursiveCallCount uint64  `json:"nonrecursive_call_count"`
		TotalTime             int64   `json:"total_time"`
		SelfTime              int64   `json:"self_time"`
		Children              []Child `json:"children"`
	}

	// Child is the edge from a Func to one of its callees. Index is the
	// callee's index in the same FuncStats.
	Child struct {
		Index                 uint32 `json:"index"`
		Name                  string `json:"name"`
		Module                string `json:"module"`
		Line                  int    `json:"line"`
		Native                bool   `json:"native"`
		FullName              string `json:"full_name"`
		CallCount             uint64 `json:"call_count"`
		NonRecursiveCallCount uint64 `json:"nonrecursive_call_count"`
		TotalTime             int64  `json:"total_time"`
		SelfTime              int64  `json:"self_time"`
	}

	FuncStats struct {
		ClockType timing.ClockType
		SortKey   SortKey
		Order     Order
		Funcs     []*Func

		byName   map[string]*Func
		maxIndex uint32
	}
)

const (
	ByName SortKey = iota
	ByCallCount
	ByTotalTime
	BySelfTime
	ByAvgTime
)

const (
	Ascending Order = iota
	Descending
)

var (
	sortKeyNames = map[string]SortKey{
		"name":      ByName,
		"callcount": ByCallCount,
		"ncall":     ByCallCount,
		"totaltime": ByTotalTime,
		"ttot":      ByTotalTime,
		"subtime":   BySelfTime,
		"tsub":      BySelfTime,
		"avgtime":   ByAvgTime,
		"tavg":      ByAvgTime,
	}
	orderNames = map[string]Order{
		"asc":        Ascending,
		"ascending":  Ascending,
		"desc":       Descending,
		"descending": Descending,
	}
)

func (k SortKey) String() string {
	switch k {
	case ByName:
		return "name"
	case ByCallCount:
		return "callcount"
	case ByTotalTime:
		return "totaltime"
	case BySelfTime:
		return "subtime"
	case ByAvgTime:
		return "avgtime"
	}
	return fmt.Sprintf("SortKey(%d)", int(k))
}

func (o Order) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// ParseSortKey accepts the long and short column names, in any case.
func ParseSortKey(s string) (SortKey, error) {
	k, ok := sortKeyNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: sort key %q", errorutil.ErrInvalidArgument, s)
	}
	return k, nil
}

func ParseOrder(s string) (Order, error) {
	o, ok := orderNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: sort order %q", errorutil.ErrInvalidArgument, s)
	}
	return o, nil
}

// FullName is module:line name, or module.name for native functions.
func FullName(native bool, module string, line int, name string) string {
	if native {
		if module == "" {
			return name
		}
		return module + "." + name
	}
	return fmt.Sprintf("%s:%d %s", module, line, name)
}

func average(total int64, calls uint64) float64 {
	if calls == 0 {
		return 0
	}
	return float64(total) / float64(calls)
}

// AvgTime is the mean inclusive time per call, in ticks.
func (f *Func) AvgTime() float64 {
	return average(f.TotalTime, f.CallCount)
}

// Recursive reports whether some calls happened while the function was
// already on the stack. A function that never returned is not recursive.
func (f *Func) Recursive() bool {
	return f.NonRecursiveCallCount != 0 && f.CallCount != f.NonRecursiveCallCount
}

func (c *Child) AvgTime() float64 {
	return average(c.TotalTime, c.CallCount)
}

func (c *Child) Recursive() bool {
	return c.NonRecursiveCallCount != 0 && c.CallCount != c.NonRecursiveCallCount
}

func (f *Func) addCounts(o *Func) {
	f.CallCount += o.CallCount
	f.NonRecursiveCallCount += o.NonRecursiveCallCount
	f.TotalTime += o.TotalTime
	f.SelfTime += o.SelfTime
}

func (f *Func) addChild(c Child) {
	for i := range f.Children {
		e := &f.Children[i]
		if e.FullName != c.FullName {
			continue
		}
		e.CallCount += c.CallCount
		e.NonRecursiveCallCount += c.NonRecursiveCallCount
		e.TotalTime += c.TotalTime
		e.SelfTime += c.SelfTime
		return
	}
	f.Children = append(f.Children, c)
}

func (f *Func) child(callee *Func, s profiler.ChildStat) Child {
	return Child{
		Index:                 callee.Index,
		Name:                  callee.Name,
		Module:                callee.Module,
		Line:                  callee.Line,
		Native:                callee.Native,
		FullName:              callee.FullName,
		CallCount:             s.CallCount,
		NonRecursiveCallCount: s.NonRecursiveCallCount,
		TotalTime:             s.TotalTime,
		SelfTime:              s.SelfTime,
	}
}

func newFuncStats(clock timing.ClockType) *FuncStats {
	return &FuncStats{
		ClockType: clock,
		SortKey:   ByTotalTime,
		Order:     Descending,
		byName:    make(map[string]*Func),
	}
}

// Collect snapshots the profiler's function records matching filter.
func Collect(p *profiler.Profiler, filter profiler.Filter) *FuncStats {
	return FromRecords(p.ClockType(), p.FunctionStats(filter))
}

// FromRecords folds raw records into per-function stats. Records with the
// same full name are merged; children whose callee is not among records are
// dropped.
func FromRecords(clock timing.ClockType, records []profiler.FunctionStat) *FuncStats {
	s := newFuncStats(clock)
	byIndex := make(map[uint32]*Func, len(records))
	for _, r := range records {
		f := &Func{
			Name:                  r.Info.Name,
			Module:                r.Info.Module,
			Line:                  r.Info.Line,
			Native:                r.Native,
			FullName:              FullName(r.Native, r.Info.Module, r.Info.Line, r.Info.Name),
			Index:                 r.Index,
			CallCount:             r.CallCount,
			NonRecursiveCallCount: r.NonRecursiveCallCount,
			TotalTime:             r.TotalTime,
			SelfTime:              r.SelfTime,
		}
		if cur, ok := s.byName[f.FullName]; ok {
			cur.addCounts(f)
			byIndex[r.Index] = cur
			continue
		}
		s.append(f)
		byIndex[r.Index] = f
	}
	for _, r := range records {
		f := byIndex[r.Index]
		for _, c := range r.Children {
			callee, ok := byIndex[c.Index]
			if !ok {
				continue
			}
			f.addChild(f.child(callee, c))
		}
	}
	s.Sort(ByTotalTime, Descending)
	return s
}

func (s *FuncStats) append(f *Func) {
	s.Funcs = append(s.Funcs, f)
	s.byName[f.FullName] = f
	if f.Index > s.maxIndex {
		s.maxIndex = f.Index
	}
}

func (s *FuncStats) Len() int {
	return len(s.Funcs)
}

// Get looks a function up by full name.
func (s *FuncStats) Get(fullName string) (*Func, bool) {
	f, ok := s.byName[fullName]
	return f, ok
}

// Sort orders functions and their children. Names compare case
// insensitively; ties keep their previous order.
func (s *FuncStats) Sort(key SortKey, order Order) *FuncStats {
	s.SortKey, s.Order = key, order
	sort.SliceStable(s.Funcs, func(i, j int) bool {
		a, b := s.Funcs[i], s.Funcs[j]
		if order == Descending {
			a, b = b, a
		}
		switch key {
		case ByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case ByCallCount:
			return a.CallCount < b.CallCount
		case BySelfTime:
			return a.SelfTime < b.SelfTime
		case ByAvgTime:
			return a.AvgTime() < b.AvgTime()
		default:
			return a.TotalTime < b.TotalTime
		}
	})
	for _, f := range s.Funcs {
		sortChildren(f.Children, key, order)
	}
	return s
}

func sortChildren(children []Child, key SortKey, order Order) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := &children[i], &children[j]
		if order == Descending {
			a, b = b, a
		}
		switch key {
		case ByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case ByCallCount:
			return a.CallCount < b.CallCount
		case BySelfTime:
			return a.SelfTime < b.SelfTime
		case ByAvgTime:
			return a.AvgTime() < b.AvgTime()
		default:
			return a.TotalTime < b.TotalTime
		}
	})
}

// StripDirs drops directories from every module path. Functions whose
// names collide afterwards are kept apart; lookups find the first one.
func (s *FuncStats) StripDirs() *FuncStats {
	s.byName = make(map[string]*Func, len(s.Funcs))
	for _, f := range s.Funcs {
		f.Module = filepath.Base(f.Module)
		f.FullName = FullName(f.Native, f.Module, f.Line, f.Name)
		if _, ok := s.byName[f.FullName]; !ok {
			s.byName[f.FullName] = f
		}
		for i := range f.Children {
			c := &f.Children[i]
			c.Module = filepath.Base(c.Module)
			c.FullName = FullName(c.Native, c.Module, c.Line, c.Name)
		}
	}
	return s
}

// Merge folds o into s by full name. Functions new to s get fresh indices
// above every index s holds, and children are remapped to them. Both sides
// must be measured with the same clock unless s is empty.
func (s *FuncStats) Merge(o *FuncStats) error {
	if s == o {
		return nil
	}
	if len(s.Funcs) > 0 && s.ClockType != o.ClockType {
		return fmt.Errorf("%w: %s and %s", errorutil.ErrClockMismatch, s.ClockType, o.ClockType)
	}
	s.ClockType = o.ClockType
	for _, of := range o.Funcs {
		if cur, ok := s.byName[of.FullName]; ok {
			cur.addCounts(of)
			continue
		}
		f := *of
		f.Children = nil
		s.maxIndex++
		f.Index = s.maxIndex
		s.append(&f)
	}
	for _, of := range o.Funcs {
		cur := s.byName[of.FullName]
		for _, c := range of.Children {
			callee, ok := s.byName[c.FullName]
			if !ok {
				continue
			}
			c.Index = callee.Index
			cur.addChild(c)
		}
	}
	s.Sort(s.SortKey, s.Order)
	return nil
}

// Seconds converts ticks to seconds.
func Seconds(ticks int64) float64 {
	return time.Duration(ticks).Seconds()
}
