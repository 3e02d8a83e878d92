package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/retryopt/internal/advretry"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/spf13/cobra"
)

var (
	advObjective    string
	advOptimizer    string
	advDim          int
	advNumRetries   int
	advWorkers      int
	advSeed         int64
	advMaxEvalsInit int
	advMaxEvalsCap  int
	advStopFitness  float64
	advStoreCap     int
	advLogInterval  time.Duration
	advEvalTimeout  time.Duration
)

var advretryCmd = &cobra.Command{
	Use:   "advretry",
	Short: "Run coordinated parallel retry with a shared elite store",
	Long: `Coordinates many independent optimizer runs through a shared elite
store: once the store has warmed up, new runs are seeded by crossover
recombination of stored solutions, and the per-run evaluation budget
doubles on a schedule from cheap exploration toward deep exploitation.`,
	RunE: runAdvancedRetry,
}

func init() {
	advretryCmd.Flags().StringVar(&advObjective, "objective", "rastrigin", "Benchmark objective")
	advretryCmd.Flags().StringVar(&advOptimizer, "optimizer", "cmaes", "Optimizer for each independent run")
	advretryCmd.Flags().IntVar(&advDim, "dim", 10, "Problem dimension")
	advretryCmd.Flags().IntVar(&advNumRetries, "retries", 500, "Number of coordinated retries")
	advretryCmd.Flags().IntVar(&advWorkers, "workers", 8, "Concurrent workers")
	advretryCmd.Flags().Int64Var(&advSeed, "seed", 42, "Random seed")
	advretryCmd.Flags().IntVar(&advMaxEvalsInit, "max-evals-init", 1500, "Initial per-run evaluation budget")
	advretryCmd.Flags().IntVar(&advMaxEvalsCap, "max-evals-cap", 50000, "Per-run evaluation budget ceiling")
	advretryCmd.Flags().Float64Var(&advStopFitness, "stop-fitness", 0, "Stop once the store's global best reaches this value (0 = disabled)")
	advretryCmd.Flags().IntVar(&advStoreCap, "store-capacity", 500, "Elite store capacity")
	advretryCmd.Flags().DurationVar(&advLogInterval, "log-interval", 5*time.Second, "Progress log interval")
	advretryCmd.Flags().DurationVar(&advEvalTimeout, "eval-timeout", 0, "Per-evaluation timeout (0 = disabled)")

	rootCmd.AddCommand(advretryCmd)
}

func runAdvancedRetry(cmd *cobra.Command, args []string) error {
	p, err := buildProblem(advObjective, advDim, advEvalTimeout)
	if err != nil {
		return fmt.Errorf("building problem: %w", err)
	}
	optimizer, err := buildOptimizer(advOptimizer, 0, 1)
	if err != nil {
		return fmt.Errorf("building optimizer: %w", err)
	}

	opts := advretry.Options{
		NumRetries:    advNumRetries,
		Workers:       advWorkers,
		MaxEvalsInit:  advMaxEvalsInit,
		MaxEvalsCap:   advMaxEvalsCap,
		StopFitness:   advStopFitness,
		StoreCapacity: advStoreCap,
		LogInterval:   advLogInterval,
		Logger:        logger,
	}

	start := time.Now()
	stats, evals := advretry.Minimize(context.Background(), p, optimizer, opts, nil, rng.New(uint64(advSeed)))
	elapsed := time.Since(start)

	fmt.Printf("best_f=%.6g store_size=%d worst_store_f=%.6g retries=%d evaluations=%d elapsed=%s\n",
		stats.BestF, stats.StoreSize, stats.WorstStoreF, stats.RetriesCompleted, evals, elapsed)

	return nil
}
