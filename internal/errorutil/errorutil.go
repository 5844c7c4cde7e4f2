package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrProfilerActive is returned by operations that need the profiler to be
// stopped first.
var ErrProfilerActive = errors.New("profiler is running")

// ErrStatsExist is returned when a session setting is changed while
// statistics from a previous session are still held.
var ErrStatsExist = errors.New("statistics exist, clear them first")

// ErrClockMismatch is returned when merging statistics measured with
// different clocks.
var ErrClockMismatch = errors.New("clock types differ")

// ErrInvalidArgument is returned when a caller-supplied value is outside
// the accepted set, such as an unknown sort key.
var ErrInvalidArgument = errors.New("invalid argument")
