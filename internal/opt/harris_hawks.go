package opt

import (
	"context"
	"math"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// HarrisHawks is a Harris Hawks Optimization adapter: a population of
// "hawks" explores by perching relative to a random flock member or the
// population mean, then transitions to exploitation (soft/hard besiege,
// with a Lévy-flight patch on the hard variants) as the remaining-budget
// energy parameter decays. It holds no state beyond its Options.
type HarrisHawks struct {
	Options HarrisHawksOptions
}

// HarrisHawksOptions configures a HarrisHawks run.
type HarrisHawksOptions struct {
	Popsize        int     // 0 selects max(20, 5*dim).
	MaxEvaluations int     // 0 means unlimited (bounded only by MaxIter/StopFitness).
	MaxIter        int     // 0 selects 500.
	StopFitness    float64 // run stops once best <= StopFitness; zero value disables.
	LevyBeta       float64 // Lévy flight exponent; 0 selects 1.5.
}

func (o HarrisHawksOptions) withDefaults(dim int) HarrisHawksOptions {
	if o.Popsize == 0 {
		o.Popsize = max(20, 5*dim)
	}
	if o.MaxIter == 0 {
		o.MaxIter = 500
	}
	if o.LevyBeta == 0 {
		o.LevyBeta = 1.5
	}
	return o
}

func (a HarrisHawks) Name() string { return "harris-hawks" }

func (a HarrisHawks) WithMaxEvaluations(n int) Optimizer {
	a.Options.MaxEvaluations = n
	return a
}

// Minimize implements Optimizer.
func (a HarrisHawks) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	bounds := p.Bounds
	n := bounds.Dim()
	opts := a.Options.withDefaults(n)

	if opts.MaxEvaluations == 0 && opts.MaxIter == 0 && opts.StopFitness == 0 {
		x := guess
		if x == nil {
			x = bounds.Mid()
		}
		f := p.EvalCtx(ctx, x)
		return problem.Candidate{X: x, F: f}, StopMaxIter, 1
	}

	hawks := make([][]float64, opts.Popsize)
	fitness := make([]float64, opts.Popsize)
	for i := range hawks {
		hawks[i] = rng.ReinitUniform(rg, bounds.Lo, bounds.Hi)
	}
	if guess != nil {
		hawks[0] = append([]float64(nil), guess...)
	}

	var best problem.Candidate
	best.F = math.Inf(1)
	var evals int

	for i, h := range hawks {
		fitness[i] = p.EvalCtx(ctx, h)
		evals++
		if fitness[i] < best.F {
			best = problem.Candidate{X: append([]float64(nil), h...), F: fitness[i]}
		}
	}

	for iter := 1; ; iter++ {
		select {
		case <-ctx.Done():
			return best, Continue, evals
		default:
		}

		energy := 2 * (1 - float64(iter)/float64(opts.MaxIter)) // linearly decaying escape energy
		mean := flockMean(hawks)

		for i := range hawks {
			jump := (2 * rg.Float64()) * (1 - rg.Float64())
			e := energy * jump

			var next []float64
			switch {
			case math.Abs(e) >= 1:
				next = explore(rg, hawks, mean, bounds, i)
			case math.Abs(e) >= 0.5:
				next = softBesiege(rg, hawks[i], best.X, e, n)
			default:
				next = hardBesiege(rg, hawks[i], best.X, e, opts.LevyBeta, n)
			}
			rng.ReflectVector(next, bounds.Lo, bounds.Hi)

			f := p.EvalCtx(ctx, next)
			evals++
			if f < fitness[i] {
				hawks[i] = next
				fitness[i] = f
			}
			if fitness[i] < best.F {
				best = problem.Candidate{X: append([]float64(nil), hawks[i]...), F: fitness[i]}
			}

			if opts.MaxEvaluations > 0 && evals >= opts.MaxEvaluations {
				return best, StopMaxIter, evals
			}
		}

		if opts.StopFitness != 0 && best.F <= opts.StopFitness {
			return best, StopFitness, evals
		}
		if iter >= opts.MaxIter {
			return best, StopMaxIter, evals
		}
	}
}

func flockMean(hawks [][]float64) []float64 {
	n := len(hawks[0])
	mean := make([]float64, n)
	for _, h := range hawks {
		for j, v := range h {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(hawks))
	}
	return mean
}

// explore perches relative to a random flock member (50%) or the flock
// mean pulled toward a random bounds point (50%), the two HHO exploration
// rules.
func explore(rg *rng.Source, hawks [][]float64, mean []float64, bounds problem.Bounds, self int) []float64 {
	n := len(mean)
	next := make([]float64, n)
	if rg.Float64() >= 0.5 {
		other := hawks[rg.IntN(len(hawks))]
		for j := 0; j < n; j++ {
			next[j] = other[j] - rg.Float64()*math.Abs(other[j]-2*rg.Float64()*hawks[self][j])
		}
	} else {
		for j := 0; j < n; j++ {
			r := bounds.Lo[j] + rg.Float64()*(bounds.Hi[j]-bounds.Lo[j])
			next[j] = (mean[j] - r) * rg.Float64()
		}
	}
	return next
}

func softBesiege(rg *rng.Source, hawk, rabbit []float64, e float64, n int) []float64 {
	next := make([]float64, n)
	jumpStrength := 2 * (1 - rg.Float64())
	for j := 0; j < n; j++ {
		delta := rabbit[j] - hawk[j]
		next[j] = delta - e*math.Abs(jumpStrength*rabbit[j]-hawk[j])
		next[j] = rabbit[j] - next[j]
	}
	return next
}

func hardBesiege(rg *rng.Source, hawk, rabbit []float64, e, beta float64, n int) []float64 {
	jumpStrength := 2 * (1 - rg.Float64())
	levy := levyFlight(rg, beta, n)
	next := make([]float64, n)
	for j := 0; j < n; j++ {
		diff := math.Abs(jumpStrength*rabbit[j] - hawk[j])
		next[j] = rabbit[j] - e*diff + levy[j]
	}
	return next
}

// levyFlight draws an n-dimensional Lévy-distributed step via the
// Mantegna algorithm (ratio of two Gaussians raised to a power related to
// beta), giving occasional long-range jumps during hard-besiege patches.
func levyFlight(rg *rng.Source, beta float64, n int) []float64 {
	sigma := math.Pow(
		gammaApprox(1+beta)*math.Sin(math.Pi*beta/2)/
			(gammaApprox((1+beta)/2)*beta*math.Pow(2, (beta-1)/2)),
		1/beta,
	)
	out := make([]float64, n)
	for j := 0; j < n; j++ {
		u := rg.NormFloat64() * sigma
		v := rg.NormFloat64()
		out[j] = 0.01 * u / math.Pow(math.Abs(v), 1/beta)
	}
	return out
}

// gammaApprox is the Stirling approximation to the gamma function, precise
// enough for the Lévy step-size normalization above (which only needs the
// ratio's order of magnitude, not high precision).
func gammaApprox(x float64) float64 {
	return math.Sqrt(2*math.Pi/x) * math.Pow(x/math.E, x)
}
