package opt

import (
	"context"

	"github.com/cwbudde/retryopt/internal/de"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// DEAdapter wraps de.Minimize to satisfy Optimizer and Budgeted. DE seeds
// its population uniformly within bounds, so guess/sigma0 are accepted for
// interface symmetry and otherwise ignored.
type DEAdapter struct {
	Options de.Options
}

func (a DEAdapter) Name() string { return "differential-evolution" }

func (a DEAdapter) WithMaxEvaluations(n int) Optimizer {
	a.Options.MaxEvaluations = n
	return a
}

func (a DEAdapter) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	cand, status, evals := de.Minimize(ctx, p, p.Bounds, a.Options, rg)
	return cand, translateDEStatus(status), evals
}

func translateDEStatus(s de.Status) Status {
	switch s {
	case de.Continue:
		return Continue
	case de.StopFitnessStatus:
		return StopFitness
	case de.StopMaxIter:
		return StopMaxIter
	case de.StopFitnessInvalid:
		return StopFitnessInvalid
	default:
		return StopCondition
	}
}
