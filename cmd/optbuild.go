package main

import (
	"fmt"
	"time"

	"github.com/cwbudde/retryopt/internal/bench"
	"github.com/cwbudde/retryopt/internal/cmaes"
	"github.com/cwbudde/retryopt/internal/de"
	"github.com/cwbudde/retryopt/internal/opt"
	"github.com/cwbudde/retryopt/internal/problem"
)

// buildProblem resolves a registered objective by name and constructs a
// Problem over its default bounds at the requested dimension. A positive
// evalTimeout bounds each individual evaluation (problem.Problem.Timeout);
// zero disables the per-call timeout.
func buildProblem(objectiveName string, dim int, evalTimeout time.Duration) (*problem.Problem, error) {
	obj, err := bench.Lookup(objectiveName)
	if err != nil {
		return nil, err
	}
	bounds, err := obj.DefaultBounds(dim)
	if err != nil {
		return nil, err
	}
	p := problem.New(obj.Fn, bounds, problem.ConcurrencySafe)
	p.Timeout = evalTimeout
	return p, nil
}

// buildOptimizer constructs an opt.Optimizer by name: "cmaes", "de",
// "dual-annealing", "harris-hawks", or "sequence" (a fixed CMA-ES-then-DE
// chain useful for exercising the Sequence combinator from the CLI).
func buildOptimizer(name string, maxEvaluations, workers int) (opt.Optimizer, error) {
	switch name {
	case "cmaes":
		return opt.CMAAdapter{Options: cmaes.Options{MaxEvaluations: maxEvaluations, Workers: workers}}, nil
	case "de":
		return opt.DEAdapter{Options: de.Options{MaxEvaluations: maxEvaluations, Workers: workers}}, nil
	case "dual-annealing":
		return opt.DualAnnealing{Options: opt.DualAnnealingOptions{MaxEvaluations: maxEvaluations}}, nil
	case "harris-hawks":
		return opt.HarrisHawks{Options: opt.HarrisHawksOptions{MaxEvaluations: maxEvaluations}}, nil
	case "sequence":
		return &opt.Sequence{
			Optimizers:     []opt.Optimizer{opt.CMAAdapter{}, opt.DEAdapter{}},
			Weights:        []float64{0.5, 0.5},
			MaxEvaluations: maxEvaluations,
		}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (available: cmaes, de, dual-annealing, harris-hawks, sequence)", name)
	}
}
