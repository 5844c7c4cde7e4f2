// Package callstack holds the per-context stack of live calls.
package callstack

const defaultSize = 64

type (
	// Frame is a live call: the function record's arena index and the tick
	// at which it was entered.
	Frame struct {
		EnteredAt int64
		Function  uint32
	}

	// Stack is a growable array of frames addressed by a head index; -1
	// means the stack is empty.
	Stack struct {
		items []Frame
		head  int
	}
)

func New(size int) *Stack {
	if size <= 0 {
		size = defaultSize
	}
	return &Stack{
		items: make([]Frame, size),
		head:  -1,
	}
}

// Push appends a frame for fn and returns it so the caller can stamp its
// entry time. The returned pointer is valid until the next Push.
func (s *Stack) Push(fn uint32) *Frame {
	if s.head >= len(s.items)-1 {
		items := make([]Frame, len(s.items)*2)
		copy(items, s.items)
		s.items = items
	}
	s.head++
	f := &s.items[s.head]
	f.Function = fn
	f.EnteredAt = 0
	return f
}

// Pop removes the top frame.
func (s *Stack) Pop() (Frame, bool) {
	if s.head < 0 {
		return Frame{}, false
	}
	f := s.items[s.head]
	s.head--
	return f, true
}

// Peek returns the top frame without removing it.
func (s *Stack) Peek() (*Frame, bool) {
	if s.head < 0 {
		return nil, false
	}
	return &s.items[s.head], true
}

// At returns the frame depth levels below the top; At(0) is the top.
func (s *Stack) At(depth int) (*Frame, bool) {
	if depth < 0 || depth > s.head {
		return nil, false
	}
	return &s.items[s.head-depth], true
}

// Len returns the number of live frames.
func (s *Stack) Len() int {
	return s.head + 1
}

// Contains reports whether fn has a live frame.
func (s *Stack) Contains(fn uint32) bool {
	for i := s.head; i >= 0; i-- {
		if s.items[i].Function == fn {
			return true
		}
	}
	return false
}

// Shift moves the entry time of every live frame forward by d ticks.
func (s *Stack) Shift(d int64) {
	for i := 0; i <= s.head; i++ {
		s.items[i].EnteredAt += d
	}
}

// Reset drops every frame.
func (s *Stack) Reset() {
	s.head = -1
}
