package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		out  float64
		null bool
		ok   bool
	}{
		{"1", 1, false, true},
		{"1.23", 1.23, false, true},
		{"1,23", 1.23, false, true},
		{" 2.50 ", 2.5, false, true},
		{"0", 0, false, true},
		{"", 0, true, true},
		{"   ", 0, true, true},
		{"-1", 0, false, false},
		{"abc", 0, false, false},
		{"1.2.3", 0, false, false},
		{"NaN", 0, false, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q unexpected error: %v", tc.in, err)
		}
		if tc.null {
			if got != nil {
				t.Fatalf("%q expected nil, got %v", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestRatio(t *testing.T) {
	if r := Ratio(10, 0); r != nil {
		t.Fatalf("expected nil for zero denominator, got %v", *r)
	}
	if r := Ratio(10, 4); r == nil || *r != 2.5 {
		t.Fatalf("expected 2.5, got %v", r)
	}
}

func TestRelClose(t *testing.T) {
	cases := []struct {
		a, b float64
		want bool
	}{
		{100000, 100000.05, true},
		{100000, 100001, false},
		{0, 1e-7, true},
		{0, 1e-5, false},
		{-3.2, -3.2000000001, true},
	}
	for _, tc := range cases {
		if got := RelClose(tc.a, tc.b, DefaultTolerance); got != tc.want {
			t.Errorf("RelClose(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNewPriceQtyMetric(t *testing.T) {
	m := NewPriceQtyMetric(Month{Year: 2017, Month: 3}, "", 4, 8, 200)
	if m.UnitPrice == nil || *m.UnitPrice != 25 {
		t.Fatalf("unit price: got %v", m.UnitPrice)
	}
	if m.BasketSize == nil || *m.BasketSize != 2 {
		t.Fatalf("basket size: got %v", m.BasketSize)
	}
	if m.AOVRecalc == nil || *m.AOVRecalc != 50 {
		t.Fatalf("aov recalc: got %v", m.AOVRecalc)
	}

	empty := NewPriceQtyMetric(Month{Year: 2017, Month: 3}, "", 0, 0, 0)
	if empty.UnitPrice != nil || empty.BasketSize != nil || empty.AOVRecalc != nil {
		t.Fatalf("expected nil ratios for empty month, got %+v", empty)
	}
}
