package opt

import (
	"context"
	"math"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// Budgeted is implemented by optimizers whose per-run evaluation cap can be
// rebound without constructing a new value (cmaes and de adapters do this).
// Sequence uses it to divide an overall budget across stages by weight;
// optimizers that don't implement it keep whatever cap they were
// constructed with.
type Budgeted interface {
	WithMaxEvaluations(n int) Optimizer
}

// Sequence runs each optimizer in order, weighting its share of the overall
// evaluation budget, threading the returned best point (and a step-size
// derived from the previous stage's sigma0) into the next stage as its
// starting guess. It returns the best candidate over the whole chain.
//
// If a stage panics, Sequence recovers, keeps the best-so-far as the
// starting point, and continues to the next stage rather than aborting the
// whole chain.
type Sequence struct {
	Optimizers []Optimizer
	// MaxEvaluations, if > 0, is the overall budget split across stages by
	// Weights. If 0, each stage keeps its own constructed budget.
	MaxEvaluations int
	// Weights sums to 1 and has the same length as Optimizers; Weights[i] is
	// the fraction of MaxEvaluations given to stage i. A nil Weights splits
	// the budget evenly.
	Weights []float64
}

func (s *Sequence) weights() []float64 {
	if s.Weights != nil {
		return s.Weights
	}
	n := len(s.Optimizers)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// Minimize implements Optimizer.
func (s *Sequence) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	var (
		best   problem.Candidate
		status Status
		evals  int
	)
	best.F = math.Inf(1)

	w := s.weights()
	for i, o := range s.Optimizers {
		if s.MaxEvaluations > 0 {
			if b, ok := o.(Budgeted); ok {
				o = b.WithMaxEvaluations(int(w[i] * float64(s.MaxEvaluations)))
			}
		}
		stageGuess, stageSigma := guess, sigma0
		func() {
			defer func() {
				if r := recover(); r != nil {
					// keep best-so-far; continue the chain.
					status = Continue
					if best.X != nil {
						guess = best.X
					}
				}
			}()
			cand, st, n := o.Minimize(ctx, p, stageGuess, stageSigma, rg)
			evals += n
			status = st
			if cand.F < best.F {
				best = cand
			}
			guess = cand.X
			sigma0 = derivedSigma(sigma0)
		}()
	}
	return best, status, evals
}

// derivedSigma produces a next-stage step size from the previous stage's
// sigma0. Without access to each algorithm's internal dispersion (they
// differ in what they expose) this shrinks the previous sigma0, which
// tends toward exploitation as the chain progresses.
func derivedSigma(prevSigma []float64) []float64 {
	if prevSigma == nil {
		return nil
	}
	next := make([]float64, len(prevSigma))
	for i, s := range prevSigma {
		next[i] = 0.5 * s
	}
	return next
}
