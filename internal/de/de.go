// Package de implements differential evolution with the
// current-to-pbest/1/bin mutation/crossover scheme, per-offspring temporal
// locality (a second trial extrapolating beyond a trial that already
// improved its parent), and continuous age-based stochastic
// reinitialization of stalled population members.
package de

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// fMin/fMax and crMin/crMax bound the per-offspring differential weight and
// crossover probability, each resampled fresh for every trial.
const (
	fMin, fMax   = 0.5, 1.0
	crMin, crMax = 0.1, 0.9

	// alphaMin/alphaMax bound the extrapolation factor applied to a
	// temporal-locality trial's second, further step.
	alphaMin, alphaMax = 1.0, 1.5
)

// Options configures a DE run.
type Options struct {
	Popsize        int     // 0 selects max(20, 5*dim).
	PBestFraction  float64 // fraction of the population eligible as pbest; 0 selects 0.3.
	MaxEvaluations int     // 0 means unlimited (bounded only by MaxIter/StopFitness); if all three are 0, Minimize evaluates the bounds midpoint once and returns.
	MaxIter        int     // 0 means unlimited.
	StopFitness    float64 // run stops once best <= StopFitness; zero value disables.
	AgeMax         int     // 0 selects Popsize; reinit probability is age/AgeMax.
	Workers        int     // >1 dispatches trial evaluation to a worker pool.
}

func (o Options) withDefaults(dim int) Options {
	if o.Popsize == 0 {
		o.Popsize = max(20, 5*dim)
	}
	if o.PBestFraction == 0 {
		o.PBestFraction = 0.3
	}
	if o.AgeMax == 0 {
		o.AgeMax = o.Popsize
	}
	return o
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Status is the terminal (or continuing) state of a Tell call.
type Status int

const (
	Continue Status = iota
	StopFitnessStatus
	StopMaxIter
	StopFitnessInvalid
)

type member struct {
	x   []float64
	f   float64
	age int // generations since this member last improved its own fitness
}

// State is a single DE run's population state.
type State struct {
	p      *problem.Problem
	opts   Options
	bounds problem.Bounds
	dim    int
	rg     *rng.Source

	pop []member

	lastTrials []trial
	bestEver   problem.Candidate

	generation int
	evals      int
	allFailed  int

	stopped bool
	status  Status
}

type trial struct {
	target int // index into pop this trial competes against
	x      []float64
}

// New constructs a DE run, seeding the population uniformly within bounds.
// p is retained so that Tell can evaluate temporal-locality second trials
// without Minimize mediating every exchange.
func New(p *problem.Problem, bounds problem.Bounds, opts Options, rg *rng.Source) *State {
	dim := bounds.Dim()
	opts = opts.withDefaults(dim)

	s := &State{p: p, opts: opts, bounds: bounds, dim: dim, rg: rg}
	s.pop = make([]member, opts.Popsize)
	for i := range s.pop {
		x := rng.ReinitUniform(rg, bounds.Lo, bounds.Hi)
		s.pop[i] = member{x: x, f: math.Inf(1)}
	}
	s.bestEver.F = math.Inf(1)
	return s
}

// Ask returns the population's initial positions on the very first call (so
// Tell can record their fitness), and thereafter returns one
// current-to-pbest/1/bin trial per population member, each with a freshly
// sampled differential weight and crossover probability.
func (s *State) Ask() [][]float64 {
	if s.generation == 0 {
		points := make([][]float64, len(s.pop))
		for i, m := range s.pop {
			points[i] = m.x
		}
		return points
	}

	pbestCount := max(1, int(math.Ceil(s.opts.PBestFraction*float64(len(s.pop)))))
	sortedIdx := s.sortedByFitness()
	pbestPool := sortedIdx[:pbestCount]

	s.lastTrials = make([]trial, len(s.pop))
	for i := range s.pop {
		r1, r2 := s.distinctIndices(i, 2)
		pbest := pbestPool[s.rg.IntN(len(pbestPool))]

		f := fMin + s.rg.Float64()*(fMax-fMin)
		cr := crMin + s.rg.Float64()*(crMax-crMin)

		mutant := make([]float64, s.dim)
		for j := 0; j < s.dim; j++ {
			mutant[j] = s.pop[i].x[j] + f*(s.pop[pbest].x[j]-s.pop[i].x[j]) + f*(s.pop[r1].x[j]-s.pop[r2].x[j])
		}

		trialX := s.binomialCrossover(s.pop[i].x, mutant, cr)
		rng.ReflectVector(trialX, s.bounds.Lo, s.bounds.Hi)
		s.lastTrials[i] = trial{target: i, x: trialX}
	}

	points := make([][]float64, len(s.lastTrials))
	for i, t := range s.lastTrials {
		points[i] = t.x
	}
	return points
}

func (s *State) binomialCrossover(target, mutant []float64, cr float64) []float64 {
	out := make([]float64, s.dim)
	copy(out, target)
	forced := s.rg.IntN(s.dim)
	for j := 0; j < s.dim; j++ {
		if j == forced || s.rg.Float64() < cr {
			out[j] = mutant[j]
		}
	}
	return out
}

// distinctIndices returns n indices distinct from exclude and from each
// other, drawn from the population.
func (s *State) distinctIndices(exclude, n int) (int, int) {
	pick := func(avoid map[int]bool) int {
		for {
			k := s.rg.IntN(len(s.pop))
			if !avoid[k] {
				return k
			}
		}
	}
	avoid := map[int]bool{exclude: true}
	r1 := pick(avoid)
	avoid[r1] = true
	r2 := pick(avoid)
	return r1, r2
}

func (s *State) sortedByFitness() []int {
	idx := make([]int, len(s.pop))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && s.pop[idx[j]].f < s.pop[idx[j-1]].f; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

// Tell accepts the objective values for the most recent Ask batch (aligned
// by index). For every trial that improved its parent, it builds and
// evaluates a second trial that extrapolates further along the same
// direction, keeps the better of the two, and commits that as the new
// member. Trials that did not improve their parent leave the parent in
// place and age it by one generation.
func (s *State) Tell(ctx context.Context, values []float64) Status {
	if s.stopped {
		return s.status
	}
	s.evals += len(values)
	s.generation++

	if s.generation == 1 {
		return s.tellInitial(values)
	}

	type pending struct {
		target int
		x      []float64
		v      float64
	}
	var pend []pending

	allInf := true
	for i, t := range s.lastTrials {
		v := values[i]
		if !math.IsInf(v, 1) {
			allInf = false
		}
		if v < s.pop[t.target].f {
			pend = append(pend, pending{target: t.target, x: t.x, v: v})
		} else {
			s.pop[t.target].age++
		}
	}

	if allInf {
		s.allFailed++
		if s.allFailed >= 1 {
			return s.stop(StopFitnessInvalid)
		}
	} else {
		s.allFailed = 0
	}

	if len(pend) > 0 {
		secondX := make([][]float64, len(pend))
		for k, pe := range pend {
			alpha := alphaMin + s.rg.Float64()*(alphaMax-alphaMin)
			x := make([]float64, s.dim)
			for j := 0; j < s.dim; j++ {
				x[j] = s.pop[pe.target].x[j] + alpha*(pe.x[j]-s.pop[pe.target].x[j])
			}
			rng.ReflectVector(x, s.bounds.Lo, s.bounds.Hi)
			secondX[k] = x
		}
		secondV := evaluate(ctx, s.p, secondX, s.opts.Workers)
		s.evals += len(secondV)

		for k, pe := range pend {
			bestX, bestF := pe.x, pe.v
			if secondV[k] < bestF {
				bestX, bestF = secondX[k], secondV[k]
			}
			s.pop[pe.target] = member{x: bestX, f: bestF, age: 0}
			if bestF < s.bestEver.F {
				s.bestEver = problem.Candidate{X: append([]float64(nil), bestX...), F: bestF}
			}
		}
	}

	s.ageReinit()

	return s.checkStop()
}

func (s *State) tellInitial(values []float64) Status {
	allInf := true
	for i, v := range values {
		s.pop[i].f = v
		if !math.IsInf(v, 1) {
			allInf = false
		}
		if v < s.bestEver.F {
			s.bestEver = problem.Candidate{X: append([]float64(nil), s.pop[i].x...), F: v}
		}
	}
	if allInf {
		return s.stop(StopFitnessInvalid)
	}
	return s.checkStop()
}

// ageReinit reinitializes each member with probability age/AgeMax, giving
// every member some reinit chance from the start rather than gating it
// behind a fixed age threshold.
func (s *State) ageReinit() {
	ageMax := float64(s.opts.AgeMax)
	for i := range s.pop {
		p := float64(s.pop[i].age) / ageMax
		if s.rg.Float64() < p {
			s.pop[i] = member{x: rng.ReinitUniform(s.rg, s.bounds.Lo, s.bounds.Hi), f: math.Inf(1), age: 0}
		}
	}
}

func (s *State) checkStop() Status {
	if s.opts.StopFitness != 0 && s.bestEver.F <= s.opts.StopFitness {
		return s.stop(StopFitnessStatus)
	}
	if s.opts.MaxIter > 0 && s.generation >= s.opts.MaxIter {
		return s.stop(StopMaxIter)
	}
	if s.opts.MaxEvaluations > 0 && s.evals >= s.opts.MaxEvaluations {
		return s.stop(StopMaxIter)
	}
	return Continue
}

func (s *State) stop(status Status) Status {
	s.stopped = true
	s.status = status
	return status
}

// Best returns the best candidate observed so far.
func (s *State) Best() problem.Candidate { return s.bestEver }

// Evaluations returns the total number of objective evaluations consumed.
func (s *State) Evaluations() int { return s.evals }

// Minimize drives ask/tell to a terminal status and returns the best
// candidate, the status, and total evaluations consumed. It takes no
// starting guess or step size: DE seeds its population uniformly within
// bounds.
func Minimize(ctx context.Context, p *problem.Problem, bounds problem.Bounds, opts Options, rg *rng.Source) (problem.Candidate, Status, int) {
	s := New(p, bounds, opts, rg)

	if opts.MaxEvaluations == 0 && opts.MaxIter == 0 && opts.StopFitness == 0 {
		x := bounds.Mid()
		f := p.EvalCtx(ctx, x)
		return problem.Candidate{X: x, F: f}, StopMaxIter, 1
	}

	for {
		select {
		case <-ctx.Done():
			return s.Best(), Continue, s.Evaluations()
		default:
		}

		points := s.Ask()
		values := evaluate(ctx, p, points, opts.Workers)
		status := s.Tell(ctx, values)
		if status != Continue {
			return s.Best(), status, s.Evaluations()
		}
	}
}

// evaluate runs a batch of trials through p, honoring p.Timeout per call via
// EvalCtx so a single pathological trial cannot stall an entire generation.
func evaluate(ctx context.Context, p *problem.Problem, points [][]float64, workers int) []float64 {
	values := make([]float64, len(points))
	if workers <= 1 {
		for i, x := range points {
			values[i] = p.EvalCtx(ctx, x)
		}
		return values
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, x := range points {
		i, x := i, x
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				values[i] = math.Inf(1)
				return nil
			}
			defer sem.Release(1)
			values[i] = p.EvalCtx(gctx, x)
			return nil
		})
	}
	_ = g.Wait()
	return values
}
