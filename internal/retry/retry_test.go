package retry

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/retryopt/internal/opt"
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
	bounds, err := problem.NewBounds(lo, hi)
	if err != nil {
		panic(err)
	}
	return problem.New(sphere, bounds, problem.ConcurrencySafe)
}

func TestMinimizeAggregatesAcrossRetries(t *testing.T) {
	p := boxProblem(3, 5)
	optimizer := opt.CMAAdapter{}

	best, stats, evals := Minimize(context.Background(), p, optimizer, Options{NumRetries: 8, Workers: 4}, rng.New(1))

	if math.IsInf(best.F, 1) {
		t.Fatal("expected a finite best candidate")
	}
	if stats.RetriesCompleted != 8 {
		t.Errorf("RetriesCompleted: got %d, want 8", stats.RetriesCompleted)
	}
	if evals <= 0 {
		t.Errorf("expected positive evaluation count, got %d", evals)
	}
	if stats.Best.F != best.F {
		t.Errorf("stats.Best.F (%v) should match returned best.F (%v)", stats.Best.F, best.F)
	}
}

func TestMinimizeRespectsImprovementThreshold(t *testing.T) {
	p := boxProblem(2, 5)
	optimizer := opt.CMAAdapter{}

	_, stats, _ := Minimize(context.Background(), p, optimizer, Options{
		NumRetries:           6,
		Workers:              3,
		ImprovementThreshold: 1e-3,
	}, rng.New(7))

	if stats.NumImproved > 6 {
		t.Errorf("NumImproved (%d) cannot exceed NumRetries (6)", stats.NumImproved)
	}
}

func TestMinimizeSingleWorkerDeterministic(t *testing.T) {
	p := boxProblem(3, 5)
	optimizer := opt.CMAAdapter{}

	best1, _, _ := Minimize(context.Background(), p, optimizer, Options{NumRetries: 4, Workers: 1}, rng.New(42))
	best2, _, _ := Minimize(context.Background(), p, optimizer, Options{NumRetries: 4, Workers: 1}, rng.New(42))

	if best1.F != best2.F {
		t.Errorf("expected deterministic result with workers=1 and fixed seed, got %v vs %v", best1.F, best2.F)
	}
}

func TestMinimizeZeroRetries(t *testing.T) {
	p := boxProblem(2, 5)
	optimizer := opt.CMAAdapter{}

	best, stats, evals := Minimize(context.Background(), p, optimizer, Options{NumRetries: 0}, rng.New(1))

	if !math.IsInf(best.F, 1) {
		t.Errorf("expected +Inf best with zero retries, got %v", best.F)
	}
	if stats.RetriesCompleted != 0 || evals != 0 {
		t.Errorf("expected no completed retries or evaluations, got %+v, evals=%d", stats, evals)
	}
}
