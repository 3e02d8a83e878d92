// Package retry implements simple parallel retry: fan out NumRetries
// independent optimizer runs across a bounded worker pool, each with its
// own rng seed and a uniform-in-bounds starting guess, and aggregate the
// results. It carries no shared mutable state across runs beyond the
// aggregation step, unlike the coordinated retry in package advretry.
package retry

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/retryopt/internal/opt"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/cwbudde/retryopt/internal/workerpool"
)

// Options configures a simple parallel retry run.
type Options struct {
	// NumRetries is the total number of independent runs to perform.
	NumRetries int
	// Workers bounds how many runs execute concurrently. Defaults to
	// NumRetries (full parallelism) if <= 0.
	Workers int
	// ImprovementThreshold selects the subset of run results that count
	// toward the mean/stddev summary statistics: only f <= threshold
	// contributes. Defaults to +Inf (every run counts) if <= 0.
	ImprovementThreshold float64
	// LogInterval is how often a progress summary is emitted while runs
	// are in flight. A zero value disables periodic logging.
	LogInterval time.Duration
	// Logger receives the periodic summary lines. A nil Logger disables
	// logging entirely regardless of LogInterval.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = o.NumRetries
	}
	if o.ImprovementThreshold <= 0 {
		o.ImprovementThreshold = math.Inf(1)
	}
	return o
}

// Stats summarizes a completed retry run.
type Stats struct {
	Best             problem.Candidate
	MeanF            float64
	StdF             float64
	NumImproved      int
	TotalEvaluations int
	RetriesCompleted int
}

type runOutcome struct {
	cand  problem.Candidate
	evals int
}

// Minimize submits opts.NumRetries independent optimizer runs against p,
// returning the best candidate found, aggregate statistics, and the total
// number of evaluations consumed across every run.
func Minimize(ctx context.Context, p *problem.Problem, optimizer opt.Optimizer, opts Options, rg *rng.Source) (problem.Candidate, Stats, int) {
	opts = opts.withDefaults()

	// Draw each run's seed up front from the caller's rng, sequentially,
	// so the parent generator is never touched concurrently by workers.
	seeds := make([]uint64, opts.NumRetries)
	for i := range seeds {
		seeds[i] = uint64(rg.Uniform(0, 1<<62))
	}

	scale := p.Bounds.Scale()
	sigma0 := make([]float64, len(scale))
	for i, s := range scale {
		sigma0[i] = 0.3 * s
	}

	var (
		mu        sync.Mutex
		completed int
		totalEval int
		best      = problem.Candidate{F: math.Inf(1)}
		allF      []float64
	)

	start := time.Now()
	stopLogging := make(chan struct{})
	var logWG sync.WaitGroup
	if opts.Logger != nil && opts.LogInterval > 0 {
		logWG.Add(1)
		go func() {
			defer logWG.Done()
			ticker := time.NewTicker(opts.LogInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					logProgress(opts.Logger, start, &mu, &completed, &totalEval, &best, allFCopy(&mu, &allF))
				case <-stopLogging:
					return
				}
			}
		}()
	}

	outcomes, errs := workerpool.Run(ctx, opts.Workers, seeds, func(ctx context.Context, seed uint64) (runOutcome, error) {
		runRNG := rng.New(seed)
		guess := rng.UniformVector(runRNG, p.Bounds.Lo, p.Bounds.Hi)
		cand, _, evals := optimizer.Minimize(ctx, p, guess, sigma0, runRNG)

		mu.Lock()
		completed++
		totalEval += evals
		if cand.F < best.F {
			best = cand
		}
		allF = append(allF, cand.F)
		mu.Unlock()

		return runOutcome{cand: cand, evals: evals}, nil
	})
	_ = errs // individual run failures already surface as +Inf candidates

	close(stopLogging)
	logWG.Wait()

	stats := Stats{Best: best, TotalEvaluations: totalEval, RetriesCompleted: completed}
	var belowThreshold []float64
	for _, o := range outcomes {
		if o.cand.F <= opts.ImprovementThreshold {
			belowThreshold = append(belowThreshold, o.cand.F)
		}
	}
	stats.NumImproved = len(belowThreshold)
	stats.MeanF, stats.StdF = meanStd(belowThreshold)

	if opts.Logger != nil {
		logProgress(opts.Logger, start, &mu, &completed, &totalEval, &best, allF)
	}

	return best, stats, totalEval
}

func allFCopy(mu *sync.Mutex, allF *[]float64) []float64 {
	mu.Lock()
	defer mu.Unlock()
	out := make([]float64, len(*allF))
	copy(out, *allF)
	return out
}

// logProgress emits the simple-retry log line of spec.md §6: elapsed time,
// evaluations/sec, retries completed, total evaluations, best f, mean,
// stddev, the best 20 f values, and the best x.
func logProgress(logger *slog.Logger, start time.Time, mu *sync.Mutex, completed, totalEval *int, best *problem.Candidate, snapshotF []float64) {
	mu.Lock()
	elapsed := time.Since(start)
	c := *completed
	evals := *totalEval
	b := *best
	mu.Unlock()

	top20, mean, std := topNMeanStd(snapshotF, 20)
	rate := float64(evals) / math.Max(elapsed.Seconds(), 1e-9)

	logger.Info("retry progress",
		"elapsed", elapsed,
		"evals_per_sec", rate,
		"retries", c,
		"total_evals", evals,
		"best_f", b.F,
		"mean_f", mean,
		"std_f", std,
		"top20_f", top20,
		"best_x", b.X,
	)
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(vals)))
	return mean, std
}

func topNMeanStd(vals []float64, n int) ([]float64, float64, float64) {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	if n > len(sorted) {
		n = len(sorted)
	}
	top := sorted[:n]
	mean, std := meanStd(vals)
	return top, mean, std
}
