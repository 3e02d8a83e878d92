package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/retryopt/internal/retry"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/spf13/cobra"
)

var (
	retryObjective   string
	retryOptimizer   string
	retryDim         int
	retryNumRetries  int
	retryWorkers     int
	retrySeed        int64
	retryImprovement float64
	retryLogInterval time.Duration
	retryEvalTimeout time.Duration
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run simple parallel retry over a registered objective",
	Long: `Fans out independent optimizer runs across a worker pool with no
shared state beyond final aggregation, and reports the best, mean, and
standard deviation across all runs.`,
	RunE: runSimpleRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryObjective, "objective", "rastrigin", "Benchmark objective")
	retryCmd.Flags().StringVar(&retryOptimizer, "optimizer", "cmaes", "Optimizer for each independent run")
	retryCmd.Flags().IntVar(&retryDim, "dim", 10, "Problem dimension")
	retryCmd.Flags().IntVar(&retryNumRetries, "retries", 16, "Number of independent retries")
	retryCmd.Flags().IntVar(&retryWorkers, "workers", 8, "Concurrent workers")
	retryCmd.Flags().Int64Var(&retrySeed, "seed", 42, "Random seed")
	retryCmd.Flags().Float64Var(&retryImprovement, "improvement-threshold", 0, "Only f <= threshold counts toward summary stats (0 = all)")
	retryCmd.Flags().DurationVar(&retryLogInterval, "log-interval", 5*time.Second, "Progress log interval")
	retryCmd.Flags().DurationVar(&retryEvalTimeout, "eval-timeout", 0, "Per-evaluation timeout (0 = disabled)")

	rootCmd.AddCommand(retryCmd)
}

func runSimpleRetry(cmd *cobra.Command, args []string) error {
	p, err := buildProblem(retryObjective, retryDim, retryEvalTimeout)
	if err != nil {
		return fmt.Errorf("building problem: %w", err)
	}
	optimizer, err := buildOptimizer(retryOptimizer, 0, 1)
	if err != nil {
		return fmt.Errorf("building optimizer: %w", err)
	}

	opts := retry.Options{
		NumRetries:           retryNumRetries,
		Workers:              retryWorkers,
		ImprovementThreshold: retryImprovement,
		LogInterval:          retryLogInterval,
		Logger:               logger,
	}

	start := time.Now()
	best, stats, evals := retry.Minimize(context.Background(), p, optimizer, opts, rng.New(uint64(retrySeed)))
	elapsed := time.Since(start)

	fmt.Printf("best_f=%.6g mean_f=%.6g std_f=%.6g retries=%d evaluations=%d elapsed=%s\n",
		best.F, stats.MeanF, stats.StdF, stats.RetriesCompleted, evals, elapsed)

	return nil
}
