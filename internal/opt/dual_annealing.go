package opt

import (
	"context"
	"math"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// DualAnnealing is a generalized simulated-annealing optimizer: a Cauchy
// (Tsallis-style) visiting distribution proposes long-range jumps more
// often than a Gaussian would, paired with the classical GSA acceptance
// rule and an inverse-power cooling schedule. It holds no state beyond its
// Options, so a value is safe to reuse across concurrent runs.
type DualAnnealing struct {
	Options DualAnnealingOptions
}

// DualAnnealingOptions configures a DualAnnealing run.
type DualAnnealingOptions struct {
	MaxEvaluations int     // 0 means unlimited (bounded only by MaxIter/StopFitness).
	MaxIter        int     // 0 selects 1000.
	InitialTemp    float64 // 0 selects 5230 (the value classical GSA papers use for a unit-scaled box).
	VisitParam     float64 // Tsallis q_v; 0 selects 2.62.
	AcceptParam    float64 // Tsallis q_a; 0 selects -5.0.
	StopFitness    float64 // run stops once best <= StopFitness; zero value disables.
}

func (o DualAnnealingOptions) withDefaults() DualAnnealingOptions {
	if o.MaxIter == 0 {
		o.MaxIter = 1000
	}
	if o.InitialTemp == 0 {
		o.InitialTemp = 5230
	}
	if o.VisitParam == 0 {
		o.VisitParam = 2.62
	}
	if o.AcceptParam == 0 {
		o.AcceptParam = -5.0
	}
	return o
}

func (a DualAnnealing) Name() string { return "dual-annealing" }

func (a DualAnnealing) WithMaxEvaluations(n int) Optimizer {
	a.Options.MaxEvaluations = n
	return a
}

// Minimize implements Optimizer.
func (a DualAnnealing) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	opts := a.Options.withDefaults()
	bounds := p.Bounds
	n := bounds.Dim()

	if opts.MaxEvaluations == 0 && opts.MaxIter == 0 && opts.StopFitness == 0 {
		x := guess
		if x == nil {
			x = bounds.Mid()
		}
		f := p.EvalCtx(ctx, x)
		return problem.Candidate{X: x, F: f}, StopMaxIter, 1
	}

	x := guess
	if x == nil {
		x = bounds.Mid()
	}
	x = append([]float64(nil), x...)
	fx := p.EvalCtx(ctx, x)

	best := problem.Candidate{X: append([]float64(nil), x...), F: fx}
	scale := bounds.Scale()

	evals := 1
	for iter := 1; ; iter++ {
		select {
		case <-ctx.Done():
			return best, Continue, evals
		default:
		}

		temp := coolingTemp(opts.InitialTemp, opts.VisitParam, iter)

		candidate := make([]float64, n)
		for i := 0; i < n; i++ {
			step := visitingStep(rg, opts.VisitParam, temp) * scale[i]
			candidate[i] = x[i] + step
		}
		rng.ReflectVector(candidate, bounds.Lo, bounds.Hi)

		fc := p.EvalCtx(ctx, candidate)
		evals++

		if accept(fx, fc, temp, opts.AcceptParam, rg) {
			x, fx = candidate, fc
			if fx < best.F {
				best = problem.Candidate{X: append([]float64(nil), x...), F: fx}
			}
		}

		if opts.StopFitness != 0 && best.F <= opts.StopFitness {
			return best, StopFitness, evals
		}
		if opts.MaxIter > 0 && iter >= opts.MaxIter {
			return best, StopMaxIter, evals
		}
		if opts.MaxEvaluations > 0 && evals >= opts.MaxEvaluations {
			return best, StopMaxIter, evals
		}
	}
}

// coolingTemp implements the classical GSA inverse-power cooling rule:
// T(k) = T0 * (2^(qv-1) - 1) / ((1+k)^(qv-1) - 1).
func coolingTemp(t0, qv float64, iter int) float64 {
	if qv == 1 {
		return t0 / math.Log(float64(iter)+1)
	}
	return t0 * (math.Pow(2, qv-1) - 1) / (math.Pow(1+float64(iter), qv-1) - 1)
}

func visitingStep(rg *rng.Source, qv, temp float64) float64 {
	// Tsallis/Cauchy-Lorentz visiting distribution: heavier tails than a
	// Gaussian proposal, so long jumps remain plausible at low temperature.
	u := rg.Float64()
	exponent := 1 / (3 - qv)
	factor := math.Pow(1+(qv-1)*u*u, exponent)
	return temp * rg.Cauchy() * factor / 100
}

func accept(fx, fc, temp, qa float64, rg *rng.Source) bool {
	if fc <= fx {
		return true
	}
	if math.IsInf(fc, 1) {
		return false
	}
	delta := fc - fx
	// generalized (Tsallis) acceptance probability; qa<1 per classical GSA.
	pqa := math.Pow(1+(qa-1)*delta/temp, 1/(1-qa))
	if math.IsNaN(pqa) {
		return false
	}
	return rg.Float64() < pqa
}
