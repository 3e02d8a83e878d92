package problem

import (
	"context"
	"math"
	"testing"
	"time"
)

func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestNewBoundsRejectsMismatchedLength(t *testing.T) {
	_, err := NewBounds([]float64{0, 0}, []float64{1})
	if err == nil {
		t.Fatal("expected error for mismatched bound lengths")
	}
}

func TestNewBoundsRejectsInvertedBounds(t *testing.T) {
	_, err := NewBounds([]float64{5}, []float64{1})
	if err == nil {
		t.Fatal("expected error for lo >= hi")
	}
}

func TestBoundsMidScale(t *testing.T) {
	b, err := NewBounds([]float64{-5, -10}, []float64{5, 10})
	if err != nil {
		t.Fatal(err)
	}
	mid := b.Mid()
	scale := b.Scale()
	if mid[0] != 0 || mid[1] != 0 {
		t.Errorf("unexpected midpoint: %v", mid)
	}
	if scale[0] != 5 || scale[1] != 10 {
		t.Errorf("unexpected scale: %v", scale)
	}
}

func TestEvalNormalizesNaN(t *testing.T) {
	p := New(func(x []float64) float64 { return math.NaN() }, Bounds{}, ConcurrencyUnsafe)
	f := p.Eval([]float64{1})
	if !math.IsInf(f, 1) {
		t.Errorf("expected +Inf for NaN objective, got %v", f)
	}
}

func TestEvalNormalizesPanic(t *testing.T) {
	p := New(func(x []float64) float64 { panic("boom") }, Bounds{}, ConcurrencyUnsafe)
	f := p.Eval([]float64{1})
	if !math.IsInf(f, 1) {
		t.Errorf("expected +Inf for panicking objective, got %v", f)
	}
}

func TestEvalCountsEveryCall(t *testing.T) {
	p := New(sphere, Bounds{}, ConcurrencyUnsafe)
	for i := 0; i < 5; i++ {
		p.Eval([]float64{1, 2})
	}
	if p.Evaluations() != 5 {
		t.Errorf("expected 5 evaluations, got %d", p.Evaluations())
	}
}

func TestEvalCtxTimeout(t *testing.T) {
	p := New(func(x []float64) float64 {
		time.Sleep(50 * time.Millisecond)
		return 0
	}, Bounds{}, ConcurrencyUnsafe)
	p.Timeout = 5 * time.Millisecond

	f := p.EvalCtx(context.Background(), []float64{0})
	if !math.IsInf(f, 1) {
		t.Errorf("expected timeout to report +Inf, got %v", f)
	}
}
