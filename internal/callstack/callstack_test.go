package callstack

import (
	"testing"

	"github.com/getsentry/callprof/internal/testutil"
)

func TestPushPop(t *testing.T) {
	s := New(1)
	if _, ok := s.Pop(); ok {
		t.Fatal("expected an empty stack")
	}
	if _, ok := s.Peek(); ok {
		t.Fatal("expected nothing to peek at")
	}
	for i := uint32(0); i < 10; i++ {
		f := s.Push(i)
		f.EnteredAt = int64(i) * 100
	}
	if s.Len() != 10 {
		t.Fatalf("expected 10 frames, got %d", s.Len())
	}
	top, _ := s.Peek()
	if diff := testutil.Diff(*top, Frame{Function: 9, EnteredAt: 900}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	var popped []Frame
	for {
		f, ok := s.Pop()
		if !ok {
			break
		}
		popped = append(popped, f)
	}
	if len(popped) != 10 || popped[9].Function != 0 || popped[9].EnteredAt != 0 {
		t.Fatalf("unexpected pop order: %+v", popped)
	}
}

func TestPushResetsEntryTime(t *testing.T) {
	s := New(4)
	s.Push(1).EnteredAt = 55
	s.Pop()
	if f := s.Push(2); f.EnteredAt != 0 {
		t.Fatalf("expected a fresh entry time, got %d", f.EnteredAt)
	}
}

func TestContains(t *testing.T) {
	s := New(4)
	s.Push(1)
	s.Push(2)
	s.Push(1)
	tests := []struct {
		name string
		fn   uint32
		want bool
	}{
		{name: "on stack twice", fn: 1, want: true},
		{name: "on stack once", fn: 2, want: true},
		{name: "absent", fn: 3, want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := s.Contains(test.fn); got != test.want {
				t.Fatalf("Contains(%d) = %v, want %v", test.fn, got, test.want)
			}
		})
	}
}

func TestShift(t *testing.T) {
	s := New(2)
	s.Push(1).EnteredAt = 10
	s.Push(2).EnteredAt = 20
	s.Push(3).EnteredAt = 30
	s.Pop()
	s.Shift(5)
	var got []int64
	for s.Len() > 0 {
		f, _ := s.Pop()
		got = append(got, f.EnteredAt)
	}
	if diff := testutil.Diff(got, []int64{25, 15}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestAt(t *testing.T) {
	s := New(4)
	s.Push(1)
	s.Push(2)
	s.Push(3)
	tests := []struct {
		depth  int
		want   uint32
		wantOK bool
	}{
		{depth: 0, want: 3, wantOK: true},
		{depth: 2, want: 1, wantOK: true},
		{depth: 3},
		{depth: -1},
	}
	for _, test := range tests {
		f, ok := s.At(test.depth)
		if ok != test.wantOK {
			t.Fatalf("At(%d) ok = %v, want %v", test.depth, ok, test.wantOK)
		}
		if ok && f.Function != test.want {
			t.Fatalf("At(%d) = %d, want %d", test.depth, f.Function, test.want)
		}
	}
}
