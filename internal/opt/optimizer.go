// Package opt defines the optimizer contract shared by every algorithm in
// this module (CMA-ES, DE, Dual Annealing, Harris Hawks) and the algorithm
// expression combinators (Sequence, RandomChoice) that compose them.
package opt

import (
	"context"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// Status is the terminal (or continuing) state of a minimize call.
type Status int

const (
	Continue Status = iota
	StopFitness
	StopTolX
	StopTolFun
	StopMaxIter
	StopCondition
	// StopFitnessInvalid is reported when every evaluation in a generation
	// failed (returned +Inf); the run terminates without being admitted by
	// any caller that checks for this status.
	StopFitnessInvalid
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "CONTINUE"
	case StopFitness:
		return "STOP_FITNESS"
	case StopTolX:
		return "STOP_TOLX"
	case StopTolFun:
		return "STOP_TOLFUN"
	case StopMaxIter:
		return "STOP_MAXITER"
	case StopCondition:
		return "STOP_CONDITION"
	case StopFitnessInvalid:
		return "STOP_FITNESS_INVALID"
	default:
		return "UNKNOWN"
	}
}

// Optimizer is the contract every algorithm and combinator in this module
// satisfies. Minimize drives a single run to a terminal status and returns
// the best candidate found, the terminal status, and the number of
// evaluations consumed.
//
// guess may be nil: CMA-ES and Dual Annealing then start from the bounds
// midpoint, while Harris Hawks seeds its whole flock uniformly in bounds
// (DE ignores guess and always seeds uniformly). sigma0 may be nil, in
// which case CMA-ES uses 0.3*scale; DE, Dual Annealing and Harris Hawks
// ignore sigma0. rg must not be nil; callers give each run its own rng.Source
// so concurrent runs never share generator state.
type Optimizer interface {
	Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int)
}

// Name is implemented by optimizers that carry a human-readable identity,
// used for logging. Sequence and RandomChoice do not implement it.
type Name interface {
	Name() string
}
