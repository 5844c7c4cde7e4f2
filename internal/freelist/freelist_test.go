package freelist

import (
	"errors"
	"testing"
)

type record struct {
	id    int
	names []string
}

func TestAcquireGrowsByDoubling(t *testing.T) {
	tests := []struct {
		name     string
		initial  uint32
		acquires int
		wantCap  uint32
	}{
		{name: "within initial size", initial: 4, acquires: 4, wantCap: 4},
		{name: "one growth", initial: 4, acquires: 5, wantCap: 8},
		{name: "several growths", initial: 1, acquires: 9, wantCap: 16},
		{name: "zero size is one", initial: 0, acquires: 1, wantCap: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := New[record](test.initial)
			for i := 0; i < test.acquires; i++ {
				if _, _, err := p.Acquire(); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if p.Cap() != test.wantCap {
				t.Fatalf("expected capacity %d, got %d", test.wantCap, p.Cap())
			}
			if p.InUse() != uint32(test.acquires) {
				t.Fatalf("expected %d records in use, got %d", test.acquires, p.InUse())
			}
		})
	}
}

func TestRecordsNeverMove(t *testing.T) {
	p := New[record](2)
	ptrs := make(map[uint32]*record)
	for i := 0; i < 100; i++ {
		idx, r, err := p.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		r.id = i
		ptrs[idx] = r
	}
	for idx, r := range ptrs {
		if p.Get(idx) != r {
			t.Fatalf("record %d moved", idx)
		}
		if p.Get(idx).id != r.id {
			t.Fatalf("record %d lost its content", idx)
		}
	}
	if len(ptrs) != 100 {
		t.Fatalf("expected 100 distinct indices, got %d", len(ptrs))
	}
}

func TestReleaseRecycles(t *testing.T) {
	p := New[record](2)
	idx, r, _ := p.Acquire()
	r.id = 42
	r.names = []string{"a"}
	if err := p.Release(idx); err != nil {
		t.Fatal(err)
	}
	again, r2, _ := p.Acquire()
	if again != idx {
		t.Fatalf("expected released slot %d to be reused, got %d", idx, again)
	}
	if r2.id != 0 || r2.names != nil {
		t.Fatalf("expected a zeroed record, got %+v", *r2)
	}
}

func TestReleaseMoreThanAcquired(t *testing.T) {
	p := New[record](2)
	if err := p.Release(0); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestReleaseTwice(t *testing.T) {
	p := New[record](4)
	a, _, _ := p.Acquire()
	_, _, _ = p.Acquire()
	if err := p.Release(a); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(a); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if p.InUse() != 1 {
		t.Fatalf("expected 1 record in use, got %d", p.InUse())
	}
	first, _, _ := p.Acquire()
	second, _, _ := p.Acquire()
	if first == second {
		t.Fatalf("record %d handed out twice", first)
	}
}

func TestResetAfterGrowth(t *testing.T) {
	p := New[record](2)
	for i := 0; i < 5; i++ {
		_, _, _ = p.Acquire()
	}
	if err := p.Release(1); err != nil {
		t.Fatal(err)
	}
	p.Reset()
	if p.InUse() != 0 || p.Available() != int(p.Cap()) {
		t.Fatalf("expected every record free, got %d in use and %d available", p.InUse(), p.Available())
	}
	for want := uint32(0); want < p.Cap(); want++ {
		idx, _, _ := p.Acquire()
		if idx != want {
			t.Fatalf("expected index %d, got %d", want, idx)
		}
	}
}

func TestIndicesStartAtZero(t *testing.T) {
	p := New[record](3)
	for want := uint32(0); want < 7; want++ {
		idx, _, _ := p.Acquire()
		if idx != want {
			t.Fatalf("expected index %d, got %d", want, idx)
		}
	}
}

func BenchmarkAcquireRelease(b *testing.B) {
	p := New[record](64)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		idx, _, _ := p.Acquire()
		_ = p.Release(idx)
	}
}
