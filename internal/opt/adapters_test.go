package opt

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/retryopt/internal/cmaes"
	"github.com/cwbudde/retryopt/internal/de"
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

func boxProblem(n int, half float64) *problem.Problem {
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
	return problem.New(sphere, b, problem.ConcurrencySafe)
}

func TestCMAAdapterSatisfiesOptimizer(t *testing.T) {
	var _ Optimizer = CMAAdapter{}
	var _ Budgeted = CMAAdapter{}

	p := boxProblem(4, 5)
	a := CMAAdapter{Options: cmaes.Options{MaxEvaluations: 3000}}
	cand, status, evals := a.Minimize(context.Background(), p, nil, nil, rng.New(1))
	if cand.F >= 1e-4 {
		t.Errorf("expected convergence, got f=%v status=%v evals=%d", cand.F, status, evals)
	}
}

func TestDEAdapterSatisfiesOptimizer(t *testing.T) {
	var _ Optimizer = DEAdapter{}
	var _ Budgeted = DEAdapter{}

	p := boxProblem(4, 5)
	a := DEAdapter{Options: de.Options{MaxEvaluations: 10000}}
	cand, status, evals := a.Minimize(context.Background(), p, nil, nil, rng.New(1))
	if cand.F >= 1e-2 {
		t.Errorf("expected convergence, got f=%v status=%v evals=%d", cand.F, status, evals)
	}
}

func TestDualAnnealingSatisfiesOptimizer(t *testing.T) {
	var _ Optimizer = DualAnnealing{}
	var _ Budgeted = DualAnnealing{}

	p := boxProblem(3, 5)
	a := DualAnnealing{Options: DualAnnealingOptions{MaxEvaluations: 2000}}
	cand, _, evals := a.Minimize(context.Background(), p, nil, nil, rng.New(1))
	if math.IsInf(cand.F, 1) {
		t.Fatalf("expected a finite best fitness after %d evals", evals)
	}
}

func TestHarrisHawksSatisfiesOptimizer(t *testing.T) {
	var _ Optimizer = HarrisHawks{}
	var _ Budgeted = HarrisHawks{}

	p := boxProblem(3, 5)
	a := HarrisHawks{Options: HarrisHawksOptions{MaxEvaluations: 2000}}
	cand, _, evals := a.Minimize(context.Background(), p, nil, nil, rng.New(1))
	if math.IsInf(cand.F, 1) {
		t.Fatalf("expected a finite best fitness after %d evals", evals)
	}
}

func TestAdaptersReentrantAcrossConcurrentRuns(t *testing.T) {
	// a fresh value with its own rng per call must not share state; running
	// the same adapter value twice with different seeds must not panic or
	// leak one run's RNG stream into the other.
	p := boxProblem(3, 5)
	a := CMAAdapter{Options: cmaes.Options{MaxEvaluations: 500}}
	c1, _, _ := a.Minimize(context.Background(), p, nil, nil, rng.New(1))
	c2, _, _ := a.Minimize(context.Background(), p, nil, nil, rng.New(2))
	if c1.F == c2.F && c1.X[0] == c2.X[0] {
		t.Skip("different seeds coincidentally converged to the same point; not a failure")
	}
}
