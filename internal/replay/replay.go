// Package replay feeds recorded call events through a profiler.
//
// A recording is a stream of JSON values, usually one per line:
//
//	{"type":"func","fn":1,"name":"main","module":"app.go","line":3}
//	{"type":"ctx","ctx":1,"name":"MainThread"}
//	{"type":"enter","ctx":1,"fn":1,"ts":100}
//	{"type":"leave","ctx":1,"fn":1,"ts":250}
//
// Timestamps are nanosecond ticks of whichever clock the recording was
// taken with; the profiler reads each event's timestamp as the current
// time.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/timing"
)

const (
	TypeFunc          = "func"
	TypeContext       = "ctx"
	TypeEnter         = "enter"
	TypeLeave         = "leave"
	TypePauseContext  = "pause_ctx"
	TypeResumeContext = "resume_ctx"
)

var ErrInvalidEvent = errors.New("invalid event")

type Event struct {
	Type         string `json:"type"`
	Context      uint64 `json:"ctx,omitempty"`
	Function     uint64 `json:"fn,omitempty"`
	Timestamp    int64  `json:"ts,omitempty"`
	Tag          uint64 `json:"tag,omitempty"`
	Native       bool   `json:"native,omitempty"`
	Coroutine    bool   `json:"coroutine,omitempty"`
	SuspendPoint uint64 `json:"suspend_point,omitempty"`
	Suspending   bool   `json:"suspending,omitempty"`
	Name         string `json:"name,omitempty"`
	Module       string `json:"module,omitempty"`
	Line         int    `json:"line,omitempty"`
}

func (e Event) call() profiler.Call {
	return profiler.Call{
		Function:     e.Function,
		Native:       e.Native,
		Coroutine:    e.Coroutine,
		SuspendPoint: e.SuspendPoint,
		Suspending:   e.Suspending,
	}
}

// Replayer owns a multi-context profiler driven by a manual clock. It is
// safe for concurrent use; events are applied one at a time.
type Replayer struct {
	mu       sync.Mutex
	p        *profiler.Profiler
	clock    *timing.Manual
	funcs    map[uint64]profiler.FunctionInfo
	contexts map[uint64]string
	current  Event
}

// New returns a replayer whose profiler reports clockType and is not yet
// started.
func New(clockType timing.ClockType) (*Replayer, error) {
	r := &Replayer{
		p:        profiler.New(),
		clock:    timing.NewManual(clockType),
		funcs:    make(map[uint64]profiler.FunctionInfo),
		contexts: make(map[uint64]string),
	}
	if err := r.p.SetClock(r.clock); err != nil {
		return nil, err
	}
	r.p.SetResolver(profiler.ResolverFunc(r.resolve))
	r.p.SetContextNameFunc(r.contextName)
	r.p.SetTagFunc(func() uint64 { return r.current.Tag })
	return r, nil
}

func (r *Replayer) Profiler() *profiler.Profiler {
	return r.p
}

// Start begins a multi-context session.
func (r *Replayer) Start(builtins bool) {
	r.p.Start(profiler.StartOptions{Builtins: builtins, MultiContext: true})
}

// SetClockType switches the clock the recorded timestamps are reported as.
// It fails while statistics exist.
func (r *Replayer) SetClockType(t timing.ClockType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == r.clock.Type() {
		return nil
	}
	clock := timing.NewManual(t)
	clock.Set(r.clock.Now())
	if err := r.p.SetClock(clock); err != nil {
		return err
	}
	r.clock = clock
	return nil
}

// resolve and contextName run on the goroutine applying an event, with mu
// held.
func (r *Replayer) resolve(identity uint64, native bool) profiler.FunctionInfo {
	if info, ok := r.funcs[identity]; ok {
		return info
	}
	return profiler.FunctionInfo{Name: fmt.Sprintf("%#x", identity)}
}

func (r *Replayer) contextName() (string, bool) {
	name, ok := r.contexts[r.current.Context]
	return name, ok
}

// Apply delivers one event.
func (r *Replayer) Apply(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = e
	switch e.Type {
	case TypeFunc:
		if e.Name == "" {
			return fmt.Errorf("%w: function %d has no name", ErrInvalidEvent, e.Function)
		}
		r.funcs[e.Function] = profiler.FunctionInfo{Name: e.Name, Module: e.Module, Line: e.Line}
		return nil
	case TypeContext:
		r.contexts[e.Context] = e.Name
		return nil
	}
	r.clock.Set(e.Timestamp)
	switch e.Type {
	case TypeEnter:
		r.p.OnEnter(e.Context, e.call())
	case TypeLeave:
		r.p.OnLeave(e.Context, e.call())
	case TypePauseContext:
		r.p.PauseContext(e.Context)
	case TypeResumeContext:
		r.p.ResumeContext(e.Context)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// Run decodes events from rd until EOF and applies them in order. It
// returns how many events were applied.
func (r *Replayer) Run(ctx context.Context, rd io.Reader) (int, error) {
	dec := json.NewDecoder(rd)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: event %d: %v", ErrInvalidEvent, n+1, err)
		}
		if err := r.Apply(e); err != nil {
			return n, fmt.Errorf("event %d: %w", n+1, err)
		}
		n++
	}
}

// Encoder writes events in the format Run reads.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(ev Event) error {
	return e.enc.Encode(ev)
}
