package goid

import (
	"sync"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{name: "running", input: "goroutine 123 [running]:\nmain.main()", want: 123},
		{name: "large id", input: "goroutine 98765432101 [running]:", want: 98765432101},
		{name: "missing prefix", input: "thread 1 [running]:", want: 0},
		{name: "truncated", input: "gorout", want: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := parse([]byte(test.input)); got != test.want {
				t.Fatalf("parse(%q) = %d, want %d", test.input, got, test.want)
			}
		})
	}
}

func TestGetDiffersAcrossGoroutines(t *testing.T) {
	main := Get()
	if main == 0 {
		t.Fatal("expected a goroutine id")
	}
	var other int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = Get()
	}()
	wg.Wait()
	if other == main || other == 0 {
		t.Fatalf("expected a distinct id, got %d and %d", main, other)
	}
}
