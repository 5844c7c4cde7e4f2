//go:build linux

package timing

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// cpuClock reads the CPU time consumed by the calling OS thread. A goroutine
// may migrate between threads, so readings are only reliable for code that
// stays on one thread, such as after runtime.LockOSThread.
type cpuClock struct{}

func newCPUClock() Clock {
	return cpuClock{}
}

func (cpuClock) Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_THREAD_CPUTIME_ID, &ts); err != nil {
		return 0
	}
	return unix.TimespecToNsec(ts)
}

func (cpuClock) Type() ClockType {
	return CPU
}

func (cpuClock) Info() Info {
	res := "ns"
	var ts unix.Timespec
	if err := unix.ClockGetres(unix.CLOCK_THREAD_CPUTIME_ID, &ts); err == nil {
		res = fmt.Sprintf("%dns", unix.TimespecToNsec(ts))
	}
	return Info{API: "clock_gettime(CLOCK_THREAD_CPUTIME_ID)", Resolution: res}
}
