// Package timing provides the tick sources the profiler measures with.
//
// Every clock reports int64 nanosecond ticks. Only differences between two
// readings of the same clock are meaningful.
package timing

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

type ClockType int

const (
	Wall ClockType = iota
	CPU
)

var ErrInvalidClockType = errors.New("invalid clock type")

func (c ClockType) String() string {
	switch c {
	case Wall:
		return "wall"
	case CPU:
		return "cpu"
	}
	return fmt.Sprintf("ClockType(%d)", int(c))
}

// ParseClockType accepts "wall" or "cpu" in any case.
func ParseClockType(s string) (ClockType, error) {
	switch strings.ToLower(s) {
	case "wall":
		return Wall, nil
	case "cpu":
		return CPU, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidClockType, s)
}

type (
	// Info describes where a clock reads its ticks from.
	Info struct {
		API        string `json:"api"`
		Resolution string `json:"resolution"`
	}

	Clock interface {
		Now() int64
		Type() ClockType
		Info() Info
	}
)

// New returns the native clock of the requested type.
func New(t ClockType) (Clock, error) {
	switch t {
	case Wall:
		return NewWallClock(), nil
	case CPU:
		return newCPUClock(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidClockType, int(t))
}

type wallClock struct {
	base time.Time
}

// NewWallClock returns a clock reading the monotonic wall time elapsed since
// its creation.
func NewWallClock() Clock {
	return wallClock{base: time.Now()}
}

func (c wallClock) Now() int64 {
	return int64(time.Since(c.base))
}

func (wallClock) Type() ClockType {
	return Wall
}

func (wallClock) Info() Info {
	return Info{API: "time.Now (monotonic)", Resolution: "ns"}
}

// Manual is a clock that only moves when told to. It stands in for the
// native clocks when replaying recorded events or in tests.
type Manual struct {
	now int64
	typ ClockType
}

func NewManual(t ClockType) *Manual {
	return &Manual{typ: t}
}

func (m *Manual) Now() int64 {
	return atomic.LoadInt64(&m.now)
}

// Set moves the clock to ticks.
func (m *Manual) Set(ticks int64) {
	atomic.StoreInt64(&m.now, ticks)
}

// Advance moves the clock forward by d ticks.
func (m *Manual) Advance(d int64) {
	atomic.AddInt64(&m.now, d)
}

func (m *Manual) Type() ClockType {
	return m.typ
}

func (m *Manual) Info() Info {
	return Info{API: "manual", Resolution: "ns"}
}
