// Package cmaes implements rank-mu + rank-one covariance matrix adaptation
// evolution strategy (CMA-ES) with an ask/tell surface and an optional
// parallel evaluator for the current population.
package cmaes

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// Options configures a CMA-ES run. Zero values select the documented
// algorithm defaults.
type Options struct {
	Popsize        int     // lambda; 0 selects 4 + floor(3*ln(n)), minimum 5.
	MaxEvaluations int     // 0 means unlimited (bounded only by MaxIter/StopFitness); if all three are 0, Minimize evaluates the start point once and returns.
	MaxIter        int     // 0 means unlimited.
	StopFitness    float64 // run stops once best <= StopFitness. The zero value disables this check.
	Workers        int     // >1 dispatches population evaluation to a worker pool.
	TolX           float64 // 0 selects 1e-11.
	TolFun         float64 // 0 selects 1e-12.
}

func (o Options) withDefaults(n int) Options {
	if o.Popsize == 0 {
		o.Popsize = max(5, 4+int(3*math.Log(float64(n))))
	}
	if o.StopFitness == 0 {
		o.StopFitness = math.Inf(-1)
	}
	if o.TolX == 0 {
		o.TolX = 1e-11
	}
	if o.TolFun == 0 {
		o.TolFun = 1e-12
	}
	return o
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Status mirrors opt.Status without importing opt, so cmaes has no
// dependency on the combinator package; the opt.CMAAdapter translates.
type Status int

const (
	Continue Status = iota
	StopFitnessStatus
	StopTolX
	StopTolFun
	StopMaxIter
	StopCondition
	StopFitnessInvalid
)

// State is a single CMA-ES run's ask/tell state.
type State struct {
	opts   Options
	bounds problem.Bounds
	n      int
	rg     *rng.Source

	mean  []float64
	sigma float64
	c     *mat.SymDense
	pSig  []float64
	pC    []float64

	b *mat.Dense   // eigenvectors, columns
	d []float64    // sqrt(eigenvalues), i.e. D in C = B diag(D)^2 B^T
	eigenGen int
	eigenEvery int

	weights []float64
	mueff   float64
	mu      int
	lambda  int

	cSigma, dSigma float64
	cc, c1, cmu    float64
	chiN           float64

	generation int
	evals      int

	bestEver problem.Candidate

	lastSamples [][]float64 // z-space samples from the most recent Ask
	lastX       [][]float64 // repaired x-space points from the most recent Ask

	fitHistory      []float64 // recent best-of-generation values, for TolFun window
	allFailed       int       // consecutive generations where every eval was +Inf
	degenerateCount int       // consecutive eigendecompositions recovered via resetCovariance

	stopped bool
	status  Status
}

// New constructs a CMA-ES run. guess defaults to the bounds midpoint;
// sigma0 defaults to 0.3*scale.
func New(bounds problem.Bounds, guess, sigma0 []float64, opts Options, rg *rng.Source) (*State, error) {
	n := bounds.Dim()
	if n == 0 {
		return nil, fmt.Errorf("cmaes: bounds must have at least one dimension")
	}
	opts = opts.withDefaults(n)
	if opts.Popsize < 1 {
		return nil, fmt.Errorf("cmaes: popsize must be positive, got %d", opts.Popsize)
	}

	if guess == nil {
		guess = bounds.Mid()
	}
	scale := bounds.Scale()
	if sigma0 == nil {
		sigma0 = make([]float64, n)
		for i := range sigma0 {
			sigma0[i] = 0.3 * scale[i]
		}
	}

	s := &State{
		opts:   opts,
		bounds: bounds,
		n:      n,
		rg:     rg,
		mean:   append([]float64(nil), guess...),
		sigma:  1, // absolute step lives in the per-coordinate sigma0 below; sigma tracks the CSA scalar multiplier.
		pSig:   make([]float64, n),
		pC:     make([]float64, n),
	}
	s.bestEver.F = math.Inf(1)

	s.lambda = opts.Popsize
	s.mu = s.lambda / 2
	if s.mu < 1 {
		s.mu = 1
	}

	// recombination weights: w_i ∝ log(mu+1) - log(i), normalized to sum 1.
	s.weights = make([]float64, s.mu)
	var wsum, wsumSq float64
	for i := 0; i < s.mu; i++ {
		w := math.Log(float64(s.mu)+1) - math.Log(float64(i+1))
		s.weights[i] = w
		wsum += w
	}
	for i := range s.weights {
		s.weights[i] /= wsum
		wsumSq += s.weights[i] * s.weights[i]
	}
	s.mueff = 1 / wsumSq

	nf := float64(n)
	s.cSigma = (s.mueff + 2) / (nf + s.mueff + 5)
	s.dSigma = 1 + 2*math.Max(0, math.Sqrt((s.mueff-1)/(nf+1))-1) + s.cSigma
	s.cc = (4 + s.mueff/nf) / (nf + 4 + 2*s.mueff/nf)
	s.c1 = 2 / ((nf+1.3)*(nf+1.3) + s.mueff)
	s.cmu = math.Min(1-s.c1, 2*(s.mueff-2+1/s.mueff)/((nf+2)*(nf+2)+s.mueff))
	s.chiN = math.Sqrt(nf) * (1 - 1/(4*nf) + 1/(21*nf*nf))

	s.eigenEvery = max(1, n/10)

	// C starts as diag(sigma0_i^2); per-coordinate step sizes are folded
	// into the initial covariance so the CSA global sigma can stay at 1.
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		v := sigma0[i]
		if v <= 0 {
			v = 1e-6 * scale[i]
		}
		c.SetSym(i, i, v*v)
	}
	s.c = c
	if err := s.updateEigen(); err != nil {
		return nil, err
	}

	return s, nil
}

// Ask returns lambda candidate points in the feasible box.
func (s *State) Ask() [][]float64 {
	s.lastSamples = make([][]float64, s.lambda)
	s.lastX = make([][]float64, s.lambda)
	for k := 0; k < s.lambda; k++ {
		z := s.rg.NormVector(s.n)
		s.lastSamples[k] = z
		x := s.sampleFromZ(z)
		// reflection repair is applied to x, not z, so the underlying
		// Gaussian is preserved for the path updates.
		rng.ReflectVector(x, s.bounds.Lo, s.bounds.Hi)
		s.lastX[k] = x
	}
	return s.lastX
}

func (s *State) sampleFromZ(z []float64) []float64 {
	// x = mean + sigma * B*D*z
	bd := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		var v float64
		for j := 0; j < s.n; j++ {
			v += s.b.At(i, j) * s.d[j] * z[j]
		}
		bd[i] = v
	}
	x := make([]float64, s.n)
	for i := range x {
		x[i] = s.mean[i] + s.sigma*bd[i]
	}
	return x
}

// Tell accepts the lambda objective values corresponding to the most recent
// Ask and returns the resulting status.
func (s *State) Tell(values []float64) Status {
	if s.stopped {
		return s.status
	}
	s.evals += len(values)
	s.generation++

	allInf := true
	for _, v := range values {
		if !math.IsInf(v, 1) {
			allInf = false
			break
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

	idx := argsort(values)
	bestVal := values[idx[0]]
	if bestVal < s.bestEver.F {
		s.bestEver = problem.Candidate{X: append([]float64(nil), s.lastX[idx[0]]...), F: bestVal}
	}

	s.fitHistory = append(s.fitHistory, bestVal)
	maxHist := 10 + int(math.Ceil(30*float64(s.n)/float64(s.lambda)))
	if len(s.fitHistory) > maxHist {
		s.fitHistory = s.fitHistory[len(s.fitHistory)-maxHist:]
	}

	s.updateDistribution(idx)

	if err := s.updateEigenIfDue(); err != nil {
		return s.stop(StopCondition)
	}

	return s.checkStop()
}

func (s *State) updateDistribution(idx []int) {
	n := s.n
	oldMean := append([]float64(nil), s.mean...)

	newMean := make([]float64, n)
	for i := 0; i < s.mu; i++ {
		x := s.lastX[idx[i]]
		w := s.weights[i]
		for j := 0; j < n; j++ {
			newMean[j] += w * x[j]
		}
	}
	s.mean = newMean

	meanZ := make([]float64, n)
	for i := 0; i < s.mu; i++ {
		z := s.lastSamples[idx[i]]
		w := s.weights[i]
		for j := 0; j < n; j++ {
			meanZ[j] += w * z[j]
		}
	}

	// p_sigma update, in the whitened (z) frame.
	for j := 0; j < n; j++ {
		s.pSig[j] = (1-s.cSigma)*s.pSig[j] + math.Sqrt(s.cSigma*(2-s.cSigma)*s.mueff)*meanZ[j]
	}
	pSigNorm := norm(s.pSig)

	// CSA step-size rule.
	s.sigma *= math.Exp((s.cSigma / s.dSigma) * (pSigNorm/s.chiN - 1))

	// h_sigma heuristic stalls p_c when p_sigma grows too fast.
	genTerm := math.Sqrt(1 - math.Pow(1-s.cSigma, 2*float64(s.generation)))
	hSigma := 0.0
	if pSigNorm/genTerm < (1.4+2/(float64(n)+1))*s.chiN {
		hSigma = 1
	}

	bdMeanZ := make([]float64, n)
	for i := 0; i < n; i++ {
		var v float64
		for j := 0; j < n; j++ {
			v += s.b.At(i, j) * s.d[j] * meanZ[j]
		}
		bdMeanZ[i] = v
	}
	for j := 0; j < n; j++ {
		s.pC[j] = (1-s.cc)*s.pC[j] + hSigma*math.Sqrt(s.cc*(2-s.cc)*s.mueff)*bdMeanZ[j]
	}

	// rank-one + rank-mu covariance update.
	deltaHSigma := (1 - hSigma) * s.cc * (2 - s.cc)
	c1a := s.c1 * (1 - deltaHSigma)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			old := s.c.At(i, j)
			rankOne := s.pC[i] * s.pC[j]
			var rankMu float64
			for k := 0; k < s.mu; k++ {
				x := s.lastX[idx[k]]
				dyi := (x[i] - oldMean[i]) / s.sigma
				dyj := (x[j] - oldMean[j]) / s.sigma
				rankMu += s.weights[k] * dyi * dyj
			}
			updated := (1-c1a-s.cmu)*old + c1a*rankOne + s.cmu*rankMu
			s.c.SetSym(i, j, updated)
		}
	}
}

func (s *State) updateEigenIfDue() error {
	if s.generation-s.eigenGen < s.eigenEvery {
		return nil
	}
	return s.updateEigen()
}

func (s *State) updateEigen() error {
	var eig mat.EigenSym
	if ok := eig.Factorize(s.c, true); !ok {
		return s.resetCovariance()
	}
	values := eig.Values(nil)
	for _, v := range values {
		if v <= 0 || math.IsNaN(v) {
			return s.resetCovariance()
		}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	d := make([]float64, len(values))
	for i, v := range values {
		d[i] = math.Sqrt(v)
	}
	s.b = &vecs
	s.d = d
	s.eigenGen = s.generation
	s.degenerateCount = 0
	return nil
}

// resetCovariance recovers from numerical degeneracy (non-PSD C, NaN in
// eigendecomposition) by resetting C to identity scaled by the last valid
// sigma^2 and resuming. When this happens on more than 5 consecutive
// eigendecompositions it returns an error, and Tell ends the run with
// StopCondition.
func (s *State) resetCovariance() error {
	s.degenerateCount++
	c := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		c.SetSym(i, i, s.sigma*s.sigma)
	}
	s.c = c
	if s.degenerateCount > 5 {
		return fmt.Errorf("cmaes: covariance degenerate on more than 5 consecutive eigendecompositions")
	}
	var eig mat.EigenSym
	eig.Factorize(s.c, true)
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	d := make([]float64, len(values))
	for i, v := range values {
		d[i] = math.Sqrt(math.Max(v, 1e-300))
	}
	s.b = &vecs
	s.d = d
	s.eigenGen = s.generation
	return nil
}

func (s *State) checkStop() Status {
	if s.bestEver.F <= s.opts.StopFitness {
		return s.stop(StopFitnessStatus)
	}
	if s.opts.MaxIter > 0 && s.generation >= s.opts.MaxIter {
		return s.stop(StopMaxIter)
	}
	if s.opts.MaxEvaluations > 0 && s.evals >= s.opts.MaxEvaluations {
		return s.stop(StopMaxIter)
	}
	if s.conditionNumber() > 1e14 {
		return s.stop(StopCondition)
	}
	if s.tolFunConverged() {
		return s.stop(StopTolFun)
	}
	if s.tolXConverged() {
		return s.stop(StopTolX)
	}
	return Continue
}

func (s *State) conditionNumber() float64 {
	if len(s.d) == 0 {
		return 0
	}
	min, max := s.d[0], s.d[0]
	for _, v := range s.d {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min <= 0 {
		return math.Inf(1)
	}
	return (max * max) / (min * min)
}

func (s *State) tolFunConverged() bool {
	maxHist := 10 + int(math.Ceil(30*float64(s.n)/float64(s.lambda)))
	if len(s.fitHistory) < maxHist {
		return false
	}
	min, max := s.fitHistory[0], s.fitHistory[0]
	for _, v := range s.fitHistory {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return (max - min) < s.opts.TolFun
}

func (s *State) tolXConverged() bool {
	for i := 0; i < s.n; i++ {
		coordStd := s.sigma * math.Sqrt(s.c.At(i, i))
		if coordStd >= s.opts.TolX {
			return false
		}
	}
	return true
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

func argsort(v []float64) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	// simple insertion sort; lambda is small (tens of points) so O(lambda^2)
	// is negligible compared to objective evaluation cost.
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && v[idx[j]] < v[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Minimize drives ask/tell to a terminal status and returns the best
// candidate, the status, and total evaluations consumed. If opts.Workers > 1
// the population is evaluated through a bounded worker pool; the returned
// values are reassembled into submission order before Tell, per the
// ordering guarantee within a single run.
func Minimize(ctx context.Context, p *problem.Problem, bounds problem.Bounds, guess, sigma0 []float64, opts Options, rg *rng.Source) (problem.Candidate, Status, int, error) {
	s, err := New(bounds, guess, sigma0, opts, rg)
	if err != nil {
		return problem.Candidate{}, Continue, 0, err
	}

	if opts.MaxEvaluations == 0 && opts.MaxIter == 0 && opts.StopFitness == 0 {
		// matches the boundary behavior: with no budget at all, evaluate
		// the initial guess once and return.
		x := guess
		if x == nil {
			x = bounds.Mid()
		}
		f := p.EvalCtx(ctx, x)
		return problem.Candidate{X: x, F: f}, StopMaxIter, 1, nil
	}

	for {
		select {
		case <-ctx.Done():
			return s.Best(), Continue, s.Evaluations(), ctx.Err()
		default:
		}

		points := s.Ask()
		values := evaluate(ctx, p, points, opts.Workers)
		status := s.Tell(values)
		if status != Continue {
			return s.Best(), status, s.Evaluations(), nil
		}
	}
}

// evaluate runs the population through p, honoring p.Timeout per call via
// EvalCtx so a single pathological point cannot stall an entire generation.
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
