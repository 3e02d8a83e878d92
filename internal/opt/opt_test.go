package opt

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// constOptimizer always returns the same candidate; used to test combinator
// wiring without depending on cmaes/de.
type constOptimizer struct {
	f     float64
	evals int
}

func (c constOptimizer) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	return problem.Candidate{X: []float64{0}, F: c.f}, StopFitness, c.evals
}

func TestSequenceReturnsBestAcrossStages(t *testing.T) {
	seq := &Sequence{Optimizers: []Optimizer{
		constOptimizer{f: 5, evals: 10},
		constOptimizer{f: 1, evals: 20},
		constOptimizer{f: 3, evals: 5},
	}}
	best, _, evals := seq.Minimize(context.Background(), nil, nil, nil, rng.New(1))
	if best.F != 1 {
		t.Errorf("expected best f=1, got %v", best.F)
	}
	if evals != 35 {
		t.Errorf("expected 35 total evals, got %d", evals)
	}
}

func TestSequenceOfOneIsEquivalentToThatOptimizer(t *testing.T) {
	single := constOptimizer{f: 42, evals: 7}
	seq := &Sequence{Optimizers: []Optimizer{single}}

	wantCand, wantStatus, wantEvals := single.Minimize(context.Background(), nil, nil, nil, rng.New(1))
	gotCand, gotStatus, gotEvals := seq.Minimize(context.Background(), nil, nil, nil, rng.New(1))

	if gotCand.F != wantCand.F || gotStatus != wantStatus || gotEvals != wantEvals {
		t.Errorf("Sequence([A]) != A: got (%v,%v,%v) want (%v,%v,%v)",
			gotCand.F, gotStatus, gotEvals, wantCand.F, wantStatus, wantEvals)
	}
}

type panicOptimizer struct{}

func (panicOptimizer) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	panic("simulated failure")
}

func TestSequenceContinuesAfterPanic(t *testing.T) {
	seq := &Sequence{Optimizers: []Optimizer{
		constOptimizer{f: 2, evals: 1},
		panicOptimizer{},
		constOptimizer{f: 9, evals: 1},
	}}
	best, _, _ := seq.Minimize(context.Background(), nil, nil, nil, rng.New(1))
	if best.F != 2 {
		t.Errorf("expected best-so-far f=2 to survive the panicking stage, got %v", best.F)
	}
}

func TestRandomChoicePicksFromSet(t *testing.T) {
	choices := map[float64]bool{1: true, 2: true, 3: true}
	rc := &RandomChoice{Optimizers: []Optimizer{
		constOptimizer{f: 1},
		constOptimizer{f: 2},
		constOptimizer{f: 3},
	}}
	for i := 0; i < 50; i++ {
		cand, _, _ := rc.Minimize(context.Background(), nil, nil, nil, rng.New(uint64(i)))
		if !choices[cand.F] {
			t.Errorf("unexpected candidate f=%v outside the configured choices", cand.F)
		}
	}
}

func TestStatusStrings(t *testing.T) {
	for s := Continue; s <= StopFitnessInvalid; s++ {
		if s.String() == "UNKNOWN" {
			t.Errorf("status %d missing String() case", s)
		}
	}
}

func TestNoInfinityLeaksFromConstOptimizer(t *testing.T) {
	// sanity check the test helper itself never emits non-finite values.
	c := constOptimizer{f: 1}
	cand, _, _ := c.Minimize(context.Background(), nil, nil, nil, rng.New(1))
	if math.IsInf(cand.F, 0) {
		t.Fatal("unexpected infinite candidate")
	}
}
