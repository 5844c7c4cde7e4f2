package timing

import (
	"errors"
	"testing"
)

func TestParseClockType(t *testing.T) {
	tests := []struct {
		input   string
		want    ClockType
		wantErr error
	}{
		{input: "wall", want: Wall},
		{input: "CPU", want: CPU},
		{input: "sundial", wantErr: ErrInvalidClockType},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseClockType(test.input)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected error %v, got %v", test.wantErr, err)
			}
			if err == nil && got != test.want {
				t.Fatalf("expected %v, got %v", test.want, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, typ := range []ClockType{Wall, CPU} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := New(typ)
			if err != nil {
				t.Fatal(err)
			}
			if c.Type() != typ {
				t.Fatalf("expected a %v clock, got %v", typ, c.Type())
			}
			if c.Info().API == "" {
				t.Fatal("expected clock info")
			}
			a := c.Now()
			for i := 0; i < 100000; i++ {
				_ = i * i
			}
			if b := c.Now(); b < a {
				t.Fatalf("clock went backwards: %d then %d", a, b)
			}
		})
	}
	if _, err := New(ClockType(7)); !errors.Is(err, ErrInvalidClockType) {
		t.Fatalf("expected ErrInvalidClockType, got %v", err)
	}
}

func TestManual(t *testing.T) {
	m := NewManual(Wall)
	m.Set(100)
	m.Advance(5)
	if m.Now() != 105 {
		t.Fatalf("expected 105, got %d", m.Now())
	}
}
