package profiler

import (
	"github.com/getsentry/callprof/internal/hashtab"
)

type (
	// Filter narrows function enumeration. Zero values match everything.
	Filter struct {
		ContextID *uint64
		Tag       *uint64
		Name      string
		Module    string
	}

	FunctionStat struct {
		Identity              uint64       `json:"identity"`
		Info                  FunctionInfo `json:"info"`
		Native                bool         `json:"native"`
		Index                 uint32       `json:"index"`
		CallCount             uint64       `json:"call_count"`
		NonRecursiveCallCount uint64       `json:"nonrecursive_call_count"`
		TotalTime             int64        `json:"total_time"`
		SelfTime              int64        `json:"self_time"`
		ContextID             uint64       `json:"context_id"`
		ContextName           string       `json:"context_name"`
		Tag                   uint64       `json:"tag"`
		Children              []ChildStat  `json:"children"`
	}

	// ChildStat is an edge from the enumerated function to the function with
	// arena index Index.
	ChildStat struct {
		Index                 uint32 `json:"index"`
		CallCount             uint64 `json:"call_count"`
		NonRecursiveCallCount uint64 `json:"nonrecursive_call_count"`
		TotalTime             int64  `json:"total_time"`
		SelfTime              int64  `json:"self_time"`
	}

	ContextStat struct {
		Name       string `json:"name"`
		ID         uint64 `json:"id"`
		OSID       int64  `json:"os_id"`
		Elapsed    int64  `json:"elapsed"`
		SchedCount uint64 `json:"sched_count"`
	}
)

func (f Filter) matchesContext(id uint64) bool {
	return f.ContextID == nil || *f.ContextID == id
}

func (f Filter) matchesTag(tag uint64) bool {
	return f.Tag == nil || *f.Tag == tag
}

func (f Filter) matchesInfo(info FunctionInfo) bool {
	return (f.Name == "" || f.Name == info.Name) && (f.Module == "" || f.Module == info.Module)
}

// ForEachFunctionStat calls visit for every function record matching f
// until visit returns false. Self times are clamped at zero in the reported
// values only. Native functions are hidden unless the session reports
// builtins.
//
// Records are copied while events are held back; the session keeps
// running.
func (p *Profiler) ForEachFunctionStat(f Filter, visit func(FunctionStat) bool) {
	for _, s := range p.FunctionStats(f) {
		if !visit(s) {
			return
		}
	}
}

// FunctionStats returns the records ForEachFunctionStat would visit.
func (p *Profiler) FunctionStats(f Filter) []FunctionStat {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveStats {
		return nil
	}
	var stats []FunctionStat
	p.byID.Range(func(ce *hashtab.Entry[uint32]) bool {
		ctx := p.contexts.Get(ce.Value)
		if !f.matchesContext(ctx.id) {
			return true
		}
		ctx.tags.Range(func(te *hashtab.Entry[*hashtab.Table[uint32]]) bool {
			tag := te.Key()
			if !f.matchesTag(tag) {
				return true
			}
			te.Value.Range(func(fe *hashtab.Entry[uint32]) bool {
				fn := p.functions.Get(fe.Value)
				if !f.matchesInfo(fn.info) || (fn.native && !p.opts.Builtins) {
					return true
				}
				stats = append(stats, fn.stat(ctx, tag))
				return true
			})
			return true
		})
		return true
	})
	return stats
}

func (fn *function) stat(ctx *ctxRecord, tag uint64) FunctionStat {
	s := FunctionStat{
		Identity:              fn.identity,
		Info:                  fn.info,
		Native:                fn.native,
		Index:                 fn.index,
		CallCount:             fn.calls,
		NonRecursiveCallCount: fn.nonRecCall,
		TotalTime:             fn.total,
		SelfTime:              clamp(fn.self),
		ContextID:             ctx.id,
		ContextName:           ctx.displayName(),
		Tag:                   tag,
		Children:              make([]ChildStat, 0, len(fn.children)),
	}
	for _, e := range fn.children {
		s.Children = append(s.Children, ChildStat{
			Index:                 e.callee,
			CallCount:             e.calls,
			NonRecursiveCallCount: e.nonRecCall,
			TotalTime:             e.total,
			SelfTime:              clamp(e.self),
		})
	}
	return s
}

func clamp(t int64) int64 {
	if t < 0 {
		return 0
	}
	return t
}

func (ctx *ctxRecord) displayName() string {
	if !ctx.named {
		return unnamedContext
	}
	return ctx.name
}

// ForEachContextStat calls visit for every context that ran at least one
// event until visit returns false.
func (p *Profiler) ForEachContextStat(visit func(ContextStat) bool) {
	for _, s := range p.ContextStats() {
		if !visit(s) {
			return
		}
	}
}

// ContextStats returns the contexts ForEachContextStat would visit.
func (p *Profiler) ContextStats() []ContextStat {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveStats {
		return nil
	}
	var stats []ContextStat
	p.byID.Range(func(e *hashtab.Entry[uint32]) bool {
		ctx := p.contexts.Get(e.Value)
		if ctx.schedCount == 0 {
			return true
		}
		stats = append(stats, ContextStat{
			Name:       ctx.displayName(),
			ID:         ctx.id,
			OSID:       ctx.osID,
			Elapsed:    clamp(ctx.lastSeen - ctx.startTime),
			SchedCount: ctx.schedCount,
		})
		return true
	})
	return stats
}
