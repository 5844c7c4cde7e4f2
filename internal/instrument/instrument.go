// Package instrument reports calls of Go functions to a profiler.
//
//	func handle() {
//		defer host.Func()()
//		...
//	}
//
// Each goroutine is its own context. A function's identity is the
// fingerprint of its qualified name, so inlined functions are told apart
// from their callers.
package instrument

import (
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/getsentry/callprof/internal/goid"
	"github.com/getsentry/callprof/internal/profiler"
)

type Host struct {
	p     *profiler.Profiler
	funcs sync.Map
	names sync.Map
}

// New installs a resolver and a goroutine name provider on p.
func New(p *profiler.Profiler) *Host {
	h := &Host{p: p}
	p.SetResolver(profiler.ResolverFunc(h.resolve))
	p.SetContextNameFunc(h.contextName)
	return h
}

func fingerprint(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

func (h *Host) resolve(identity uint64, native bool) profiler.FunctionInfo {
	if info, ok := h.funcs.Load(identity); ok {
		return info.(profiler.FunctionInfo)
	}
	return profiler.FunctionInfo{Name: "unknown"}
}

// caller identifies the function skip frames above Func.
func (h *Host) caller(skip int) (uint64, bool) {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0, false
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	if frame.Function == "" {
		return 0, false
	}
	id := fingerprint(frame.Function)
	if _, ok := h.funcs.Load(id); !ok {
		info := profiler.FunctionInfo{Name: frame.Function, Module: frame.File, Line: frame.Line}
		if frame.Func != nil {
			info.Module, info.Line = frame.Func.FileLine(frame.Func.Entry())
		}
		h.funcs.LoadOrStore(id, info)
	}
	return id, true
}

// Func reports a call of its caller and returns the matching return
// report.
func (h *Host) Func() func() {
	id, ok := h.caller(1)
	if !ok {
		return func() {}
	}
	c := profiler.Call{Function: id}
	h.p.Enter(c)
	return func() {
		h.p.Leave(c)
	}
}

// Name labels the calling goroutine's context. A context keeps the first
// name it is given.
func (h *Host) Name(name string) {
	h.names.Store(goid.Get(), name)
}

func (h *Host) contextName() (string, bool) {
	name, ok := h.names.Load(goid.Get())
	if !ok {
		return "", false
	}
	return name.(string), true
}
