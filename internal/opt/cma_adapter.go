package opt

import (
	"context"
	"math"

	"github.com/cwbudde/retryopt/internal/cmaes"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// CMAAdapter wraps cmaes.Minimize to satisfy Optimizer and Budgeted.
type CMAAdapter struct {
	Options cmaes.Options
}

func (a CMAAdapter) Name() string { return "cmaes" }

// WithMaxEvaluations implements Budgeted by returning a copy with the
// evaluation cap overridden; the receiver is left untouched.
func (a CMAAdapter) WithMaxEvaluations(n int) Optimizer {
	a.Options.MaxEvaluations = n
	return a
}

// Minimize implements Optimizer.
func (a CMAAdapter) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	cand, status, evals, err := cmaes.Minimize(ctx, p, p.Bounds, guess, sigma0, a.Options, rg)
	if err != nil {
		// a configuration error (bad bounds, non-positive popsize) surfaces
		// before any evaluation runs; report it as a failed candidate rather
		// than panicking the caller, consistent with Sequence's recover.
		return problem.Candidate{F: math.Inf(1)}, StopCondition, evals
	}
	return cand, translateCMAStatus(status), evals
}

func translateCMAStatus(s cmaes.Status) Status {
	switch s {
	case cmaes.Continue:
		return Continue
	case cmaes.StopFitnessStatus:
		return StopFitness
	case cmaes.StopTolX:
		return StopTolX
	case cmaes.StopTolFun:
		return StopTolFun
	case cmaes.StopMaxIter:
		return StopMaxIter
	case cmaes.StopCondition:
		return StopCondition
	case cmaes.StopFitnessInvalid:
		return StopFitnessInvalid
	default:
		return StopCondition
	}
}
