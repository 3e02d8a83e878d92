// Package advretry implements coordinated (advanced) parallel retry: many
// independent optimizer runs coordinate through a shared EliteStore, new
// runs are seeded by crossover recombination of stored solutions once the
// store has warmed up, and the per-run evaluation budget doubles on a
// schedule as the search matures from cheap exploration to deep
// exploitation.
package advretry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/retryopt/internal/opt"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/cwbudde/retryopt/internal/workerpool"
)

// Options configures a coordinated retry run.
type Options struct {
	// NumRetries is the total number of runs to attempt before stopping
	// (subject also to Deadline and StopFitness).
	NumRetries int
	// Workers bounds concurrent runs. Defaults to NumRetries if <= 0.
	Workers int
	// MaxEvalsInit is the starting per-run evaluation budget. Defaults to
	// 1500 if <= 0.
	MaxEvalsInit int
	// MaxEvalsCap is the ceiling the per-run budget doubles toward.
	// Defaults to 50000 if <= 0.
	MaxEvalsCap int
	// StopFitness stops the scheduler early once the store's global best
	// reaches this value or lower. Defaults to -Inf (disabled) if unset.
	StopFitness float64
	// Deadline, if non-zero, stops the scheduler once wall-clock time
	// since the call to Minimize exceeds it.
	Deadline time.Duration
	// StoreCapacity is the elite store's capacity K. Defaults to 500.
	StoreCapacity int
	// LogInterval is how often a progress summary is emitted while runs
	// are in flight. Zero disables periodic logging.
	LogInterval time.Duration
	// Logger receives progress lines. Nil disables logging.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = o.NumRetries
	}
	if o.MaxEvalsInit <= 0 {
		o.MaxEvalsInit = 1500
	}
	if o.MaxEvalsCap <= 0 {
		o.MaxEvalsCap = 50000
	}
	if o.MaxEvalsCap < o.MaxEvalsInit {
		o.MaxEvalsCap = o.MaxEvalsInit
	}
	if o.StopFitness == 0 {
		o.StopFitness = math.Inf(-1)
	}
	if o.StoreCapacity <= 0 {
		o.StoreCapacity = 500
	}
	return o
}

// budgetSchedule computes the step (in completed retries) at which the
// per-run budget doubles, per spec.md §4.5: step = ceil(num_retries /
// (max_evals_cap / max_evals_init)).
func budgetSchedule(numRetries, maxEvalsInit, maxEvalsCap int) int {
	ratio := float64(maxEvalsCap) / float64(maxEvalsInit)
	if ratio <= 1 {
		return numRetries + 1 // never doubles
	}
	step := int(math.Ceil(float64(numRetries) / ratio))
	if step < 1 {
		step = 1
	}
	return step
}

// budgetAt returns the per-run evaluation budget in effect once
// completed retries have finished, given the doubling schedule.
func budgetAt(completed, maxEvalsInit, maxEvalsCap, step int) int {
	doublings := completed / step
	budget := float64(maxEvalsInit) * math.Pow(2, float64(doublings))
	if budget > float64(maxEvalsCap) {
		budget = float64(maxEvalsCap)
	}
	return int(budget)
}

// runDescriptor is the (optimizer seed, starting point, scale) a worker
// consumes to perform one run.
type runDescriptor struct {
	x0, sigma0 []float64
	maxEvals   int
	parentA    *Entry
	parentB    *Entry
}

// nextDescriptor decides cold vs. crossover mode and builds the run
// descriptor for the next dispatch, per spec.md §4.5 step 1.
func nextDescriptor(store *EliteStore, bounds problem.Bounds, maxEvals int, rg *rng.Source) runDescriptor {
	kMin := int(math.Ceil(float64(store.capacity) / 5))
	if !store.HasAtLeast(kMin) {
		x0 := rng.UniformVector(rg, bounds.Lo, bounds.Hi)
		sigma0 := scaledSigma(bounds.Scale(), 0.3)
		return runDescriptor{x0: x0, sigma0: sigma0, maxEvals: maxEvals}
	}

	a, b, ok := store.SampleParents(rg)
	if !ok {
		x0 := rng.UniformVector(rg, bounds.Lo, bounds.Hi)
		sigma0 := scaledSigma(bounds.Scale(), 0.3)
		return runDescriptor{x0: x0, sigma0: sigma0, maxEvals: maxEvals}
	}

	x0, sigma0 := crossoverSeed(a, b, bounds, rg)
	return runDescriptor{x0: x0, sigma0: sigma0, maxEvals: maxEvals, parentA: &a, parentB: &b}
}

func scaledSigma(scale []float64, frac float64) []float64 {
	s := make([]float64, len(scale))
	for i, v := range scale {
		s[i] = frac * v
	}
	return s
}

// crossoverSeed builds a child starting point and step size from two elite
// entries, per spec.md §4.5: x0 = a.x + U*(b.x - a.x) with U diagonal
// uniforms in [-0.1, 1.1], sigma0 = clamp(0.5*|a.x - b.x|, 1e-6*scale,
// scale). The child is clamped back into bounds after the slight
// extrapolation the U range allows.
func crossoverSeed(a, b Entry, bounds problem.Bounds, rg *rng.Source) (x0, sigma0 []float64) {
	n := len(a.X)
	x0 = make([]float64, n)
	sigma0 = make([]float64, n)
	scale := bounds.Scale()
	for i := range x0 {
		u := rg.Uniform(-0.1, 1.1)
		x0[i] = a.X[i] + u*(b.X[i]-a.X[i])

		s := 0.5 * math.Abs(a.X[i]-b.X[i])
		lo := 1e-6 * scale[i]
		hi := scale[i]
		if s < lo {
			s = lo
		} else if s > hi {
			s = hi
		}
		sigma0[i] = s
	}
	return bounds.Clamp(x0), sigma0
}

// Stats summarizes a completed coordinated retry run.
type Stats struct {
	BestX            []float64
	BestF            float64
	StoreSize        int
	WorstStoreF      float64
	RetriesCompleted int
	TotalEvaluations int
}

// Minimize drives the coordinated retry scheduler until NumRetries have
// completed, opts.Deadline elapses, or the store's global best reaches
// StopFitness, whichever comes first. In-flight runs are drained before
// returning. elite may be nil (a fresh store is built), a freshly
// constructed *EliteStore, or one reloaded via LoadSnapshot to resume with
// a warm store. Each run's budget from the doubling schedule is applied
// through opt.Budgeted; an optimizer that does not implement it keeps its
// own evaluation cap.
func Minimize(ctx context.Context, p *problem.Problem, optimizer opt.Optimizer, opts Options, elite *EliteStore, rg *rng.Source) (Stats, int) {
	opts = opts.withDefaults()
	if elite == nil {
		elite = NewEliteStore(opts.StoreCapacity, p.Bounds)
	}

	step := budgetSchedule(opts.NumRetries, opts.MaxEvalsInit, opts.MaxEvalsCap)
	start := time.Now()

	var deadline <-chan struct{}
	if opts.Deadline > 0 {
		ch := make(chan struct{})
		go func() {
			t := time.NewTimer(opts.Deadline)
			defer t.Stop()
			select {
			case <-t.C:
				close(ch)
			case <-ctx.Done():
			}
		}()
		deadline = ch
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type dispatch struct {
		desc runDescriptor
		seed uint64
	}

	indices := make([]int, 0, opts.NumRetries)
	for i := 0; i < opts.NumRetries; i++ {
		indices = append(indices, i)
	}

	completed := 0
	totalEvals := 0
	stop := false

	stopLogging := make(chan struct{})
	logDone := make(chan struct{})
	if opts.Logger != nil && opts.LogInterval > 0 {
		go func() {
			defer close(logDone)
			ticker := time.NewTicker(opts.LogInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					logAdvProgress(opts.Logger, start, elite, completed, totalEvals)
				case <-stopLogging:
					return
				}
			}
		}()
	} else {
		close(logDone)
	}

	// The scheduler dispatches in fixed-size batches across the worker pool
	// rather than one giant fan-out, so that StopFitness/deadline checks
	// between batches can short-circuit remaining retries (the drain
	// requirement still holds: only undispatched retries are skipped).
	batchSize := opts.Workers
	if batchSize <= 0 {
		batchSize = 1
	}

	for batchStart := 0; batchStart < len(indices) && !stop; batchStart += batchSize {
		end := batchStart + batchSize
		if end > len(indices) {
			end = len(indices)
		}
		batch := indices[batchStart:end]

		dispatches := make([]dispatch, len(batch))
		for i := range batch {
			budget := budgetAt(completed+i, opts.MaxEvalsInit, opts.MaxEvalsCap, step)
			desc := nextDescriptor(elite, p.Bounds, budget, rg)
			seed := uint64(rg.Uniform(0, 1<<62))
			dispatches[i] = dispatch{desc: desc, seed: seed}
		}

		results, _ := workerpool.Run(runCtx, opts.Workers, dispatches, func(ctx context.Context, d dispatch) (int, error) {
			runRNG := rng.New(d.seed)
			runner := optimizer
			if b, ok := optimizer.(opt.Budgeted); ok {
				runner = b.WithMaxEvaluations(d.desc.maxEvals)
			}
			cand, _, evals := runner.Minimize(ctx, p, d.desc.x0, d.desc.sigma0, runRNG)
			elite.Admit(cand.X, cand.F, d.desc.parentA, d.desc.parentB)
			return evals, nil
		})

		for i := range batch {
			completed++
			totalEvals += results[i]
		}

		_, bestF := elite.Best()
		if bestF <= opts.StopFitness {
			stop = true
		}
		if deadline != nil {
			select {
			case <-deadline:
				stop = true
			default:
			}
		}
		select {
		case <-ctx.Done():
			stop = true
		default:
		}
	}

	close(stopLogging)
	<-logDone

	bestX, bestF := elite.Best()
	stats := Stats{
		BestX:            bestX,
		BestF:            bestF,
		StoreSize:        elite.Len(),
		WorstStoreF:      elite.WorstF(),
		RetriesCompleted: completed,
		TotalEvaluations: totalEvals,
	}

	if opts.Logger != nil {
		logAdvProgress(opts.Logger, start, elite, completed, totalEvals)
	}

	return stats, totalEvals
}

// logAdvProgress emits the coordinated-retry log line: elapsed time,
// evaluations/sec, retries completed, total evaluations, best f, worst
// store f, store size, the elite store's best 20 f values (mirroring
// simple retry's top20_f summary), and the best x.
func logAdvProgress(logger *slog.Logger, start time.Time, elite *EliteStore, completed, totalEvals int) {
	elapsed := time.Since(start)
	bestX, bestF := elite.Best()
	rate := float64(totalEvals) / math.Max(elapsed.Seconds(), 1e-9)

	logger.Info("advretry progress",
		"elapsed", elapsed,
		"evals_per_sec", rate,
		"retries", completed,
		"total_evals", totalEvals,
		"best_f", bestF,
		"worst_store_f", elite.WorstF(),
		"store_size", elite.Len(),
		"top20_f", elite.TopF(20),
		"best_x", bestX,
	)
}
