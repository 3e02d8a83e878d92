package rng

import (
	"math"
	"testing"
)

func TestDeterministicStream(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 100; i++ {
		av, bv := a.Float64(), b.Float64()
		if av != bv {
			t.Fatalf("draw %d diverged: %v != %v", i, av, bv)
		}
	}
}

func TestReflectInBounds(t *testing.T) {
	cases := []struct{ x, lo, hi float64 }{
		{-1, 0, 10},
		{11, 0, 10},
		{25, 0, 10},
		{-25, 0, 10},
		{5, 0, 10},
	}
	for _, c := range cases {
		got := Reflect(c.x, c.lo, c.hi)
		if got < c.lo || got > c.hi {
			t.Errorf("Reflect(%v, %v, %v) = %v, out of bounds", c.x, c.lo, c.hi, got)
		}
	}
}

func TestReflectIdentityInsideBounds(t *testing.T) {
	got := Reflect(5, 0, 10)
	if got != 5 {
		t.Errorf("expected identity for in-bounds value, got %v", got)
	}
}

func TestUniformVectorInBounds(t *testing.T) {
	s := New(1)
	lo := []float64{-1, -2, -3}
	hi := []float64{1, 2, 3}
	for i := 0; i < 50; i++ {
		v := UniformVector(s, lo, hi)
		for j, x := range v {
			if x < lo[j] || x >= hi[j] {
				t.Fatalf("coordinate %d out of bounds: %v", j, x)
			}
		}
	}
}

func TestCauchyFinite(t *testing.T) {
	s := New(7)
	for i := 0; i < 1000; i++ {
		v := s.Cauchy()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Cauchy draw not finite: %v", v)
		}
	}
}
