package profiler

import (
	"fmt"
	"sync/atomic"
)

// ErrorCode identifies an internal accounting failure. The enter and leave
// path never returns errors: failures are logged, counted and the step that
// hit them is skipped.
type ErrorCode uint8

const (
	// CodeLevelMissing means a live function had no recursion level.
	CodeLevelMissing        ErrorCode = 1
	// CodeLevelUnderflow means a recursion level was decremented past zero.
	CodeLevelUnderflow      ErrorCode = 3
	// CodeFunctionUnavailable means no function record could be allocated.
	CodeFunctionUnavailable ErrorCode = 4
	// CodeMissingEdge means a leave found no edge from the caller.
	CodeMissingEdge         ErrorCode = 6
	// CodeMissingCallerEdge means a leave found no edge into the caller.
	CodeMissingCallerEdge   ErrorCode = 7
	// CodeContextUnavailable means no context record could be allocated.
	CodeContextUnavailable  ErrorCode = 9
	// CodeReleaseFailed means a record could not be returned to its pool.
	CodeReleaseFailed       ErrorCode = 10
	// CodeConcurrentDelivery means two goroutines delivered events for the
	// same context at once.
	CodeConcurrentDelivery  ErrorCode = 15

	maxErrorCode = 16
)

// ErrorCodes lists every code the engine reports.
var ErrorCodes = []ErrorCode{
	CodeLevelMissing,
	CodeLevelUnderflow,
	CodeFunctionUnavailable,
	CodeMissingEdge,
	CodeMissingCallerEdge,
	CodeContextUnavailable,
	CodeReleaseFailed,
	CodeConcurrentDelivery,
}

func (c ErrorCode) String() string {
	switch c {
	case CodeLevelMissing:
		return "level_missing"
	case CodeLevelUnderflow:
		return "level_underflow"
	case CodeFunctionUnavailable:
		return "function_unavailable"
	case CodeMissingEdge:
		return "missing_edge"
	case CodeMissingCallerEdge:
		return "missing_caller_edge"
	case CodeContextUnavailable:
		return "context_unavailable"
	case CodeReleaseFailed:
		return "release_failed"
	case CodeConcurrentDelivery:
		return "concurrent_delivery"
	}
	return fmt.Sprintf("code_%d", uint8(c))
}

type errorCounters [maxErrorCode]uint64

func (p *Profiler) internalError(code ErrorCode) {
	atomic.AddUint64(&p.errors[code], 1)
	p.logger.Warn().Uint8("code", uint8(code)).Str("reason", code.String()).Msg("internal accounting error")
}

// ErrorCounts returns how often each internal error code was hit since the
// profiler was created.
func (p *Profiler) ErrorCounts() map[ErrorCode]uint64 {
	counts := make(map[ErrorCode]uint64, len(ErrorCodes))
	for _, c := range ErrorCodes {
		counts[c] = atomic.LoadUint64(&p.errors[c])
	}
	return counts
}
