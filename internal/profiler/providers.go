package profiler

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// provider wraps a host callback. A callback that panics is dropped and never
// called again.
type provider[T any] struct {
	name string
	fn   atomic.Pointer[func() (T, bool)]
}

func (pr *provider[T]) set(fn func() (T, bool)) {
	if fn == nil {
		pr.fn.Store(nil)
		return
	}
	pr.fn.Store(&fn)
}

func (pr *provider[T]) call(logger *zerolog.Logger) (v T, ok bool) {
	fp := pr.fn.Load()
	if fp == nil {
		return v, false
	}
	defer func() {
		if r := recover(); r != nil {
			pr.fn.CompareAndSwap(fp, nil)
			logger.Error().Str("provider", pr.name).Interface("panic", r).Msg("provider failed, disabling it")
			var zero T
			v, ok = zero, false
		}
	}()
	return (*fp)()
}

// SetContextIDFunc installs the context identity provider. Its value is
// used verbatim; collisions are the caller's responsibility. nil restores
// the per goroutine default.
func (p *Profiler) SetContextIDFunc(fn func() uint64) {
	if fn == nil {
		p.contextID.set(nil)
		return
	}
	p.contextID.set(func() (uint64, bool) { return fn(), true })
}

// SetContextNameFunc installs the context name provider. Returning false
// means the name is not known yet and will be asked for again.
func (p *Profiler) SetContextNameFunc(fn func() (string, bool)) {
	p.contextName.set(fn)
}

// SetTagFunc installs the tag provider, asked once per enter event.
func (p *Profiler) SetTagFunc(fn func() uint64) {
	if fn == nil {
		p.tag.set(nil)
		return
	}
	p.tag.set(func() (uint64, bool) { return fn(), true })
}

// SetResolver installs the function resolver. nil falls back to naming
// functions after their identity.
func (p *Profiler) SetResolver(r Resolver) {
	if r == nil {
		p.resolver.set(nil)
		return
	}
	p.resolver.set(func() (Resolver, bool) { return r, true })
}

func (p *Profiler) resolve(identity uint64, native bool) (info FunctionInfo) {
	r, ok := p.resolver.call(&p.logger)
	if !ok {
		return defaultInfo(identity)
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.resolver.set(nil)
			p.logger.Error().Uint64("identity", identity).Interface("panic", rec).Msg("resolver failed, disabling it")
			info = defaultInfo(identity)
		}
	}()
	return r.Resolve(identity, native)
}
