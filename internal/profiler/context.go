package profiler

import (
	"sync/atomic"

	"github.com/getsentry/callprof/internal/callstack"
	"github.com/getsentry/callprof/internal/goid"
	"github.com/getsentry/callprof/internal/hashtab"
)

const (
	stackSize         = 100
	levelTableLogSize = 6
	tagTableLogSize   = 2
	funcTableLogSize  = 6

	unnamedContext = "N/A"
)

// ctxRecord is the state of one timeline. Everything but the scheduling
// counter is owned by the goroutine delivering the context's events.
type ctxRecord struct {
	id    uint64
	osID  int64
	name  string
	named bool

	stack      *callstack.Stack
	funcLevels *hashtab.Table[uint32]
	edgeLevels *hashtab.Table[uint32]
	// tags maps a tag to its table of identity to function arena index.
	tags       *hashtab.Table[*hashtab.Table[uint32]]

	schedCount uint64
	startTime  int64
	lastSeen   int64

	paused   bool
	pausedAt int64

	busy int32
}

// CurrentContextID returns the identity of the calling context: the
// provider's value when one is set, 0 in single context sessions, else an
// id assigned on first sight of the calling goroutine.
func (p *Profiler) CurrentContextID() uint64 {
	if id, ok := p.contextID.call(&p.logger); ok {
		return id
	}
	if !p.multiContext.Load() {
		return 0
	}
	g := uint64(goid.Get())
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.goroutines.Get(g); ok {
		return id
	}
	id := p.nextContextID
	p.nextContextID++
	_ = p.goroutines.Add(g, id)
	return id
}

// Enter reports a call on the calling goroutine's context.
func (p *Profiler) Enter(c Call) {
	if id, ok := p.currentContext(); ok {
		p.OnEnter(id, c)
	}
}

// Leave reports a return or a suspension on the calling goroutine's context.
func (p *Profiler) Leave(c Call) {
	if id, ok := p.currentContext(); ok {
		p.OnLeave(id, c)
	}
}

func (p *Profiler) currentContext() (uint64, bool) {
	if !p.running.Load() {
		return 0, false
	}
	if !p.multiContext.Load() && p.contextID.fn.Load() == nil && goid.Get() != p.initialGoroutine.Load() {
		return 0, false
	}
	return p.CurrentContextID(), true
}

// OnEnter reports that the context ctxID called c.Function.
func (p *Profiler) OnEnter(ctxID uint64, c Call) {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if !p.accepts(ctxID) {
		return
	}
	tag, _ := p.tag.call(&p.logger)
	idx, ctx := p.schedule(ctxID)
	if ctx == nil || !p.acquire(ctx) {
		return
	}
	defer atomic.StoreInt32(&ctx.busy, 0)
	p.switchTo(idx, ctx)
	p.enter(ctx, tag, c)
}

// OnLeave reports that the function on top of ctxID's stack returned or, for
// a coroutine, suspended.
func (p *Profiler) OnLeave(ctxID uint64, c Call) {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if !p.accepts(ctxID) {
		return
	}
	idx, ctx := p.schedule(ctxID)
	if ctx == nil || !p.acquire(ctx) {
		return
	}
	defer atomic.StoreInt32(&ctx.busy, 0)
	p.switchTo(idx, ctx)
	p.leave(ctx, c)
}

func (p *Profiler) accepts(ctxID uint64) bool {
	if !p.running.Load() {
		return false
	}
	return p.multiContext.Load() || ctxID == p.initialContext.Load()
}

func (p *Profiler) acquire(ctx *ctxRecord) bool {
	if !atomic.CompareAndSwapInt32(&ctx.busy, 0, 1) {
		p.internalError(CodeConcurrentDelivery)
		return false
	}
	if !ctx.named {
		p.nameContext(ctx)
	}
	return true
}

// schedule finds or creates the context record.
func (p *Profiler) schedule(ctxID uint64) (uint32, *ctxRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.byID.Get(ctxID)
	if !ok {
		var err error
		idx, err = p.newContext(ctxID)
		if err != nil {
			p.internalError(CodeContextUnavailable)
			return 0, nil
		}
	}
	return idx, p.contexts.Get(idx)
}

// switchTo counts a scheduling whenever an accepted event belongs to another
// context than the previous one.
func (p *Profiler) switchTo(idx uint32, ctx *ctxRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prevContext != int64(idx) {
		ctx.schedCount++
	}
	p.prevContext = int64(idx)
}

func (p *Profiler) newContext(ctxID uint64) (uint32, error) {
	idx, ctx, err := p.contexts.Acquire()
	if err != nil {
		return 0, err
	}
	now := p.clock.Now()
	*ctx = ctxRecord{
		id:         ctxID,
		osID:       goid.Get(),
		stack:      callstack.New(stackSize),
		funcLevels: hashtab.New[uint32](levelTableLogSize),
		edgeLevels: hashtab.New[uint32](levelTableLogSize),
		tags:       hashtab.New[*hashtab.Table[uint32]](tagTableLogSize),
		startTime:  now,
		lastSeen:   now,
	}
	if err := p.byID.Add(ctxID, idx); err != nil {
		if err := p.contexts.Release(idx); err != nil {
			p.internalError(CodeReleaseFailed)
		}
		return 0, err
	}
	return idx, nil
}

func (p *Profiler) nameContext(ctx *ctxRecord) {
	if name, ok := p.contextName.call(&p.logger); ok {
		ctx.name = name
		ctx.named = true
	}
}

// tick reads the clock and remembers the reading as the context's last
// activity.
func (p *Profiler) tick(ctx *ctxRecord) int64 {
	now := p.clock.Now()
	ctx.lastSeen = now
	return now
}

// PauseContext marks a context as switched out. Nothing happens if the
// context is unknown or already paused.
func (p *Profiler) PauseContext(ctxID uint64) bool {
	p.gate.RLock()
	defer p.gate.RUnlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := p.lookup(ctxID)
	if ctx == nil || ctx.paused {
		return false
	}
	ctx.paused = true
	ctx.pausedAt = p.clock.Now()
	return true
}

// ResumeContext switches a paused context back in and moves its live frames
// and start time forward by the time it spent paused.
func (p *Profiler) ResumeContext(ctxID uint64) bool {
	p.gate.RLock()
	defer p.gate.RUnlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := p.lookup(ctxID)
	if ctx == nil || !ctx.paused {
		return false
	}
	ctx.paused = false
	p.shift(ctx, p.clock.Now()-ctx.pausedAt)
	return true
}

// SwitchContext is the scheduler notification that from was switched out
// in favour of to.
func (p *Profiler) SwitchContext(from, to uint64) {
	if from == to {
		return
	}
	p.PauseContext(from)
	p.ResumeContext(to)
}

func (p *Profiler) lookup(ctxID uint64) *ctxRecord {
	idx, ok := p.byID.Get(ctxID)
	if !ok {
		return nil
	}
	return p.contexts.Get(idx)
}

// shift moves every time reference of ctx forward by d.
func (p *Profiler) shift(ctx *ctxRecord, d int64) {
	if d == 0 {
		return
	}
	ctx.startTime += d
	ctx.stack.Shift(d)
	ctx.tags.Range(func(t *hashtab.Entry[*hashtab.Table[uint32]]) bool {
		t.Value.Range(func(e *hashtab.Entry[uint32]) bool {
			fn := p.functions.Get(e.Value)
			for i := range fn.coroutines {
				fn.coroutines[i].enteredAt += d
			}
			return true
		})
		return true
	})
}
