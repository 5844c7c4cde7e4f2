//go:build !linux

package timing

// cpuClock falls back to the process wall clock where no per-thread CPU
// clock is available.
type cpuClock struct {
	wallClock
}

func newCPUClock() Clock {
	return cpuClock{wallClock: NewWallClock().(wallClock)}
}

func (cpuClock) Type() ClockType {
	return CPU
}

func (cpuClock) Info() Info {
	return Info{API: "time.Now (no thread cpu clock)", Resolution: "ns"}
}
