package profiler

import (
	"github.com/getsentry/callprof/internal/callstack"
	"github.com/getsentry/callprof/internal/hashtab"
	"github.com/getsentry/callprof/internal/timing"
)

func (p *Profiler) enter(ctx *ctxRecord, tag uint64, c Call) {
	cpIdx, cp, ok := p.function(ctx, tag, c)
	if !ok {
		p.internalError(CodeFunctionUnavailable)
		return
	}
	if top, ok := ctx.stack.Peek(); ok {
		pp := p.functions.Get(top.Function)
		if pp.edge(cpIdx) == nil {
			pp.addEdge(cpIdx)
		}
		incrLevel(ctx.edgeLevels, edgeKey(top.Function, cpIdx))
	}
	f := ctx.stack.Push(cpIdx)
	f.EnteredAt = p.tick(ctx)
	incrLevel(ctx.funcLevels, uint64(cpIdx))
	if c.Coroutine {
		p.coroutineEnter(ctx, cp, c.SuspendPoint)
	}
}

func (p *Profiler) leave(ctx *ctxRecord, c Call) {
	top, ok := ctx.stack.Peek()
	if !ok {
		return
	}
	elapsed := p.elapsed(ctx, top)
	cpIdx := top.Function
	cp := p.functions.Get(cpIdx)
	ctx.stack.Pop()

	suspended := false
	if c.Coroutine {
		if c.Suspending {
			suspended = true
			// A suspended coroutine is only timed from its first entry to
			// its final return.
			if p.clock.Type() == timing.Wall {
				elapsed = 0
			}
		} else if d := p.coroutineExit(ctx, cp, c.SuspendPoint); d > 0 {
			elapsed = d
		}
	}
	if !suspended {
		cp.calls++
	}

	parent, ok := ctx.stack.Peek()
	if !ok {
		cp.total += elapsed
		cp.self += elapsed
		if !suspended {
			cp.nonRecCall++
		}
		p.decrLevel(ctx.funcLevels, uint64(cpIdx))
		return
	}
	pp := p.functions.Get(parent.Function)
	e := pp.edge(cpIdx)
	if e == nil {
		p.internalError(CodeMissingEdge)
		p.decrLevel(ctx.funcLevels, uint64(cpIdx))
		return
	}
	pp.self -= elapsed
	cp.self += elapsed
	if !suspended {
		e.calls++
	}
	// The caller's own edge loses the time too, or it would be counted
	// again when the caller leaves.
	if grand, ok := ctx.stack.At(1); ok {
		ge := p.functions.Get(grand.Function).edge(parent.Function)
		if ge == nil {
			p.internalError(CodeMissingCallerEdge)
			p.decrLevel(ctx.funcLevels, uint64(cpIdx))
			return
		}
		ge.self -= elapsed
	}
	e.self += elapsed

	if p.level(ctx.funcLevels, uint64(cpIdx)) == 1 {
		cp.total += elapsed
		if !suspended {
			cp.nonRecCall++
			e.nonRecCall++
		}
	}
	ek := edgeKey(parent.Function, cpIdx)
	if p.level(ctx.edgeLevels, ek) == 1 {
		e.total += elapsed
	}
	p.decrLevel(ctx.edgeLevels, ek)
	p.decrLevel(ctx.funcLevels, uint64(cpIdx))
}

// elapsed returns how long the top frame ran, or the injected duration when
// test timings are set.
func (p *Profiler) elapsed(ctx *ctxRecord, top *callstack.Frame) int64 {
	if timings := p.timings.Load(); timings != nil {
		cp := p.functions.Get(top.Function)
		key := TimingKey{Function: cp.identity, Level: p.level(ctx.funcLevels, uint64(top.Function))}
		if d, ok := (*timings)[key]; ok {
			return d
		}
		return defaultTestElapsed
	}
	return p.tick(ctx) - top.EnteredAt
}

// function finds or creates the record of c.Function in ctx's tag table.
func (p *Profiler) function(ctx *ctxRecord, tag uint64, c Call) (uint32, *function, bool) {
	t, ok := ctx.tags.Get(tag)
	if !ok {
		t = hashtab.New[uint32](funcTableLogSize)
		_ = ctx.tags.Add(tag, t)
	}
	if idx, ok := t.Get(c.Function); ok {
		return idx, p.functions.Get(idx), true
	}
	info := p.resolve(c.Function, c.Native)
	p.mu.Lock()
	idx, fn, err := p.functions.Acquire()
	p.mu.Unlock()
	if err != nil {
		return 0, nil, false
	}
	fn.identity = c.Function
	fn.info = info
	fn.native = c.Native
	fn.index = idx
	_ = t.Add(c.Function, idx)
	return idx, fn, true
}

func (p *Profiler) coroutineEnter(ctx *ctxRecord, cp *function, point uint64) {
	if p.clock.Type() != timing.Wall || p.level(ctx.funcLevels, uint64(cp.index)) != 1 {
		return
	}
	for _, co := range cp.coroutines {
		if co.point == point {
			// Resumed after a suspension.
			return
		}
	}
	cp.coroutines = append(cp.coroutines, coroutine{point: point, enteredAt: p.clock.Now()})
}

// coroutineExit unregisters a returning coroutine and returns the time since
// its first entry, or 0 if it was never registered.
func (p *Profiler) coroutineExit(ctx *ctxRecord, cp *function, point uint64) int64 {
	if p.clock.Type() != timing.Wall || p.level(ctx.funcLevels, uint64(cp.index)) != 1 {
		return 0
	}
	for i, co := range cp.coroutines {
		if co.point == point {
			cp.coroutines = append(cp.coroutines[:i], cp.coroutines[i+1:]...)
			return p.clock.Now() - co.enteredAt
		}
	}
	return 0
}

func (p *Profiler) level(t *hashtab.Table[uint32], key uint64) uint32 {
	v, ok := t.Get(key)
	if !ok {
		p.internalError(CodeLevelMissing)
	}
	return v
}

func incrLevel(t *hashtab.Table[uint32], key uint64) {
	if e := t.Find(key); e != nil {
		e.Value++
		return
	}
	_ = t.Add(key, 1)
}

// decrLevel drops the entry once the level is back to zero.
func (p *Profiler) decrLevel(t *hashtab.Table[uint32], key uint64) {
	e := t.Find(key)
	if e == nil {
		p.internalError(CodeLevelUnderflow)
		return
	}
	e.Value--
	if e.Value == 0 {
		t.Free(e)
	}
}
