package cmaes

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

func sphere(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return s
}

func boxBounds(n int, half float64) problem.Bounds {
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i] = -half
		hi[i] = half
	}
	b, err := problem.NewBounds(lo, hi)
	if err != nil {
		panic(err)
	}
	return b
}

func TestCovarianceStaysSymmetricPositiveDefinite(t *testing.T) {
	bounds := boxBounds(5, 5)
	p := problem.New(sphere, bounds, problem.ConcurrencySafe)
	s, err := New(bounds, nil, nil, Options{Popsize: 12, MaxIter: 20}, rng.New(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		points := s.Ask()
		values := make([]float64, len(points))
		for j, x := range points {
			values[j] = p.Eval(x)
		}
		if status := s.Tell(values); status != Continue {
			break
		}
	}
	n := s.n
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if s.c.At(i, j) != s.c.At(j, i) {
				t.Fatalf("covariance not symmetric at (%d,%d): %v vs %v", i, j, s.c.At(i, j), s.c.At(j, i))
			}
		}
		if s.c.At(i, i) <= 0 {
			t.Fatalf("covariance diagonal %d not positive: %v", i, s.c.At(i, i))
		}
	}
}

func TestSphereConverges(t *testing.T) {
	bounds := boxBounds(5, 5)
	p := problem.New(sphere, bounds, problem.ConcurrencySafe)
	cand, status, evals, err := Minimize(context.Background(), p, bounds, nil, nil, Options{MaxEvaluations: 5000}, rng.New(42))
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if cand.F >= 1e-6 {
		t.Errorf("expected near-zero best fitness within %d evals, got %v (status=%v)", evals, cand.F, status)
	}
}

func TestDeterministicWithSingleWorker(t *testing.T) {
	bounds := boxBounds(3, 4)
	p1 := problem.New(sphere, bounds, problem.ConcurrencyUnsafe)
	p2 := problem.New(sphere, bounds, problem.ConcurrencyUnsafe)

	c1, _, _, err1 := Minimize(context.Background(), p1, bounds, nil, nil, Options{MaxEvaluations: 500, Workers: 1}, rng.New(7))
	c2, _, _, err2 := Minimize(context.Background(), p2, bounds, nil, nil, Options{MaxEvaluations: 500, Workers: 1}, rng.New(7))
	if err1 != nil || err2 != nil {
		t.Fatalf("Minimize errors: %v, %v", err1, err2)
	}
	if c1.F != c2.F {
		t.Errorf("same seed produced different results: %v vs %v", c1.F, c2.F)
	}
	for i := range c1.X {
		if c1.X[i] != c2.X[i] {
			t.Errorf("same seed produced different X at %d: %v vs %v", i, c1.X[i], c2.X[i])
		}
	}
}

func TestZeroBudgetEvaluatesGuessOnce(t *testing.T) {
	bounds := boxBounds(3, 4)
	p := problem.New(sphere, bounds, problem.ConcurrencySafe)
	guess := []float64{1, 1, 1}
	cand, _, evals, err := Minimize(context.Background(), p, bounds, guess, nil, Options{}, rng.New(1))
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if evals != 1 {
		t.Errorf("expected exactly 1 evaluation for zero budget, got %d", evals)
	}
	if cand.F != sphere(guess) {
		t.Errorf("expected returned fitness to be the guess's fitness, got %v", cand.F)
	}
}

func TestReflectionKeepsPopulationInBounds(t *testing.T) {
	bounds := boxBounds(4, 1) // small box relative to the default sigma0=0.3*scale, forces frequent repair.
	s, err := New(bounds, nil, nil, Options{Popsize: 10}, rng.New(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for gen := 0; gen < 5; gen++ {
		points := s.Ask()
		for _, x := range points {
			if !bounds.InBounds(x) {
				t.Fatalf("generation %d produced out-of-bounds point: %v", gen, x)
			}
		}
		values := make([]float64, len(points))
		for i, x := range points {
			values[i] = sphere(x)
		}
		if s.Tell(values) != Continue {
			break
		}
	}
}

func TestAllInvalidGenerationStops(t *testing.T) {
	bounds := boxBounds(3, 4)
	s, err := New(bounds, nil, nil, Options{Popsize: 8}, rng.New(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Ask()
	values := make([]float64, 8)
	for i := range values {
		values[i] = math.Inf(1)
	}
	if status := s.Tell(values); status != StopFitnessInvalid {
		t.Errorf("expected StopFitnessInvalid, got %v", status)
	}
}
