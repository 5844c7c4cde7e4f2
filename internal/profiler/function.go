package profiler

import "fmt"

type (
	// Call describes one enter or leave event as reported by the host.
	Call struct {
		// Function is the opaque identity of the called function. The engine
		// only compares and hashes it.
		Function     uint64
		// Native marks builtin or foreign calls.
		Native       bool
		// Coroutine marks frames that may suspend and later resume.
		Coroutine    bool
		// SuspendPoint identifies the coroutine instance across suspensions.
		SuspendPoint uint64
		// Suspending is set on leave when the coroutine yields instead of
		// returning.
		Suspending   bool
	}

	FunctionInfo struct {
		Name   string `json:"name"`
		Module string `json:"module"`
		Line   int    `json:"line"`
	}

	// Resolver turns a function identity into a readable description. It is
	// called once per newly seen identity in a context and tag.
	Resolver interface {
		Resolve(identity uint64, native bool) FunctionInfo
	}

	ResolverFunc func(identity uint64, native bool) FunctionInfo

	// TimingKey selects an injected elapsed time by function identity and the
	// recursion level the function is at when it leaves.
	TimingKey struct {
		Function uint64
		Level    uint32
	}
)

func (f ResolverFunc) Resolve(identity uint64, native bool) FunctionInfo {
	return f(identity, native)
}

func defaultInfo(identity uint64) FunctionInfo {
	return FunctionInfo{Name: fmt.Sprintf("%#x", identity)}
}

type (
	// function is the per context and tag record of one identity. Its index
	// is its arena slot and stays unique until the statistics are cleared.
	function struct {
		identity   uint64
		info       FunctionInfo
		native     bool
		index      uint32
		calls      uint64
		nonRecCall uint64
		total      int64
		self       int64
		children   []*edge
		coroutines []coroutine
	}

	// edge accumulates the calls from one function into another.
	edge struct {
		callee     uint32
		calls      uint64
		nonRecCall uint64
		total      int64
		self       int64
	}

	coroutine struct {
		point     uint64
		enteredAt int64
	}
)

func (f *function) edge(callee uint32) *edge {
	for _, e := range f.children {
		if e.callee == callee {
			return e
		}
	}
	return nil
}

func (f *function) addEdge(callee uint32) *edge {
	e := &edge{callee: callee}
	f.children = append(f.children, e)
	return e
}

func edgeKey(caller, callee uint32) uint64 {
	return uint64(caller)<<32 | uint64(callee)
}
