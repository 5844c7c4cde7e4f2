// Package profiler implements the accounting engine of a calling-context
// profiler.
//
// A host reports every function entry and exit through OnEnter and OnLeave
// (or Enter and Leave, which derive the context from the calling goroutine).
// The engine keeps one call stack per context and accumulates, per context
// and tag, call counts, total and self time for each function and for each
// caller to callee edge. Recursive activations only contribute their
// outermost duration to totals.
//
// Events for one context must be delivered in program order by a single
// goroutine at a time. Different contexts may be driven concurrently; only
// the context registry and the record pools are shared, behind one mutex.
// Enumeration waits for in-flight events and holds new ones back until the
// records are copied, so reading statistics never drops events.
package profiler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/getsentry/callprof/internal/errorutil"
	"github.com/getsentry/callprof/internal/freelist"
	"github.com/getsentry/callprof/internal/goid"
	"github.com/getsentry/callprof/internal/hashtab"
	"github.com/getsentry/callprof/internal/logutil"
	"github.com/getsentry/callprof/internal/timing"
)

const (
	functionPoolSize = 1024
	contextPoolSize  = 64

	contextTableLogSize   = 6
	goroutineTableLogSize = 6

	// defaultTestElapsed is the elapsed time of a leave with no injected
	// timing while test timings are set.
	defaultTestElapsed = 3
)

// StartOptions are the session flags given to Start.
type StartOptions struct {
	// Builtins reports native functions in enumerations. They are always
	// accounted for.
	Builtins     bool `json:"builtins"`
	// MultiContext profiles every context. Otherwise only the context that
	// called Start is profiled.
	MultiContext bool `json:"multi_context"`
}

type Profiler struct {
	mu sync.Mutex
	// gate is held shared while an event is applied and exclusively while
	// records are copied or shifted across contexts.
	gate sync.RWMutex

	logger zerolog.Logger

	clock     timing.Clock
	running   atomic.Bool
	paused    bool
	pausedAt  int64
	haveStats bool
	opts      StartOptions
	startedAt time.Time

	multiContext     atomic.Bool
	initialContext   atomic.Uint64
	initialGoroutine atomic.Int64

	functions     *freelist.Pool[function]
	contexts      *freelist.Pool[ctxRecord]
	byID          *hashtab.Table[uint32]
	goroutines    *hashtab.Table[uint64]
	nextContextID uint64
	prevContext   int64

	timings atomic.Pointer[map[TimingKey]int64]

	contextID   provider[uint64]
	contextName provider[string]
	tag         provider[uint64]
	resolver    provider[Resolver]

	errors errorCounters
}

// New returns a stopped profiler measuring wall time.
func New() *Profiler {
	p := &Profiler{
		logger:      logutil.BurstLogger(10, time.Second, zerolog.ErrorLevel).With().Str("component", "profiler").Logger(),
		clock:       timing.NewWallClock(),
		functions:   freelist.New[function](functionPoolSize),
		contexts:    freelist.New[ctxRecord](contextPoolSize),
		byID:        hashtab.New[uint32](contextTableLogSize),
		goroutines:  hashtab.New[uint64](goroutineTableLogSize),
		prevContext: -1,
	}
	p.contextID.name = "context_id"
	p.contextName.name = "context_name"
	p.tag.name = "tag"
	p.resolver.name = "resolver"
	return p
}

// Start begins a session. Starting a running profiler is a no-op.
func (p *Profiler) Start(opts StartOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return
	}
	p.opts = opts
	p.multiContext.Store(opts.MultiContext)
	if !opts.MultiContext {
		p.initialGoroutine.Store(goid.Get())
		id, ok := p.contextID.call(&p.logger)
		if !ok {
			id = 0
		}
		p.initialContext.Store(id)
	}
	p.paused = false
	p.haveStats = true
	p.startedAt = time.Now()
	p.running.Store(true)
}

// Stop ends event processing. Live frames are abandoned in place.
func (p *Profiler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running.Store(false)
	p.paused = false
}

// Pause stops event processing until Resume. Time spent paused is excluded
// from every live frame.
func (p *Profiler) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	p.paused = true
	p.pausedAt = p.clock.Now()
}

// Resume continues a paused session.
func (p *Profiler) Resume() {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	d := p.clock.Now() - p.pausedAt
	p.byID.Range(func(e *hashtab.Entry[uint32]) bool {
		p.shift(p.contexts.Get(e.Value), d)
		return true
	})
	p.paused = false
	p.running.Store(true)
}

func (p *Profiler) IsRunning() bool {
	return p.running.Load()
}

// IsPaused reports whether the session is paused.
func (p *Profiler) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Clear drops every statistic and context. It fails with
// errorutil.ErrProfilerActive while the profiler runs.
func (p *Profiler) Clear() error {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return errorutil.ErrProfilerActive
	}
	if !p.haveStats {
		return nil
	}
	p.functions.Reset()
	p.contexts.Reset()
	p.byID = hashtab.New[uint32](contextTableLogSize)
	p.goroutines = hashtab.New[uint64](goroutineTableLogSize)
	p.prevContext = -1
	p.paused = false
	p.haveStats = false
	p.timings.Store(nil)
	return nil
}

// HasStats reports whether a session was started since the last Clear.
func (p *Profiler) HasStats() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.haveStats
}

// StartOptions returns the flags of the current session, if any.
func (p *Profiler) StartOptions() (StartOptions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts, p.haveStats
}

// StartedAt returns when the current session last started.
func (p *Profiler) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// SetClockType switches to the native clock of type t. Switching fails with
// errorutil.ErrStatsExist while statistics are held.
func (p *Profiler) SetClockType(t timing.ClockType) error {
	c, err := timing.New(t)
	if err != nil {
		return err
	}
	return p.SetClock(c)
}

// SetClock installs a custom tick source under the same rules as
// SetClockType.
func (p *Profiler) SetClock(c timing.Clock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c == p.clock {
		return nil
	}
	if p.haveStats {
		if c.Type() == p.clock.Type() {
			return nil
		}
		return errorutil.ErrStatsExist
	}
	p.clock = c
	return nil
}

func (p *Profiler) ClockType() timing.ClockType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Type()
}

func (p *Profiler) ClockInfo() timing.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Info()
}

// ClockTime returns the current reading of the session clock.
func (p *Profiler) ClockTime() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Now()
}

// SetTestTimings replaces measured durations by fixed ones for
// reproducible tests. Leaves without an entry take 3 ticks. nil turns the
// injection off. Clear also turns it off.
func (p *Profiler) SetTestTimings(timings map[TimingKey]int64) {
	if timings == nil {
		p.timings.Store(nil)
		return
	}
	m := make(map[TimingKey]int64, len(timings))
	for k, v := range timings {
		m[k] = v
	}
	p.timings.Store(&m)
}

// Usage reports how many records the pools hand out.
type Usage struct {
	Functions        uint32 `json:"functions"`
	FunctionCapacity uint32 `json:"function_capacity"`
	Contexts         uint32 `json:"contexts"`
	ContextCapacity  uint32 `json:"context_capacity"`
}

func (p *Profiler) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Usage{
		Functions:        p.functions.InUse(),
		FunctionCapacity: p.functions.Cap(),
		Contexts:         p.contexts.InUse(),
		ContextCapacity:  p.contexts.Cap(),
	}
}
