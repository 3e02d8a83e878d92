package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/retryopt/internal/advretry"
	"github.com/cwbudde/retryopt/internal/bench"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/retry"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/cwbudde/retryopt/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir    string
	resumeRetries    int
	resumeWorkers    int
	resumeMaxEvalsIn int
	resumeMaxEvalCap int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an optimization run from a saved snapshot",
	Long: `Loads a saved snapshot and restarts its retry or coordinated-retry engine,
seeding the elite store (if the snapshot carries one) or simply using the
snapshot's best point to bias the first crossover round.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for run snapshots")
	resumeCmd.Flags().IntVar(&resumeRetries, "retries", 16, "Number of additional retries to run")
	resumeCmd.Flags().IntVar(&resumeWorkers, "workers", 4, "Number of parallel workers")
	resumeCmd.Flags().IntVar(&resumeMaxEvalsIn, "max-evals-init", 0, "Override initial per-run evaluation budget (advretry only, 0 keeps snapshot's value)")
	resumeCmd.Flags().IntVar(&resumeMaxEvalCap, "max-evals-cap", 0, "Override evaluation budget cap (advretry only, 0 keeps snapshot's value)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	snapshotStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	snap, err := snapshotStore.LoadSnapshot(runID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %q: %w", runID, err)
	}

	obj, err := bench.Lookup(snap.Config.Objective)
	if err != nil {
		return fmt.Errorf("failed to resolve objective: %w", err)
	}
	bounds, err := problem.NewBounds(snap.Config.Lo, snap.Config.Hi)
	if err != nil {
		return fmt.Errorf("failed to rebuild bounds: %w", err)
	}
	p := problem.New(obj.Fn, bounds, problem.ConcurrencySafe)
	if snap.Config.EvalTimeoutMS > 0 {
		p.Timeout = time.Duration(snap.Config.EvalTimeoutMS) * time.Millisecond
	}

	optimizer, err := buildOptimizer(snap.Config.Algorithm, snap.Config.MaxEvaluations, resumeWorkers)
	if err != nil {
		return err
	}

	rg := rng.New(uint64(snap.Config.Seed))
	start := time.Now()

	switch snap.Config.Engine {
	case "advretry":
		elite := advretry.NewEliteStore(500, bounds)
		elite.LoadSnapshot(snap.Entries)
		if len(snap.Entries) == 0 {
			elite.Admit(snap.BestX, snap.BestF, nil, nil)
		}

		maxEvalsInit := snap.Config.MaxEvalsInit
		if resumeMaxEvalsIn > 0 {
			maxEvalsInit = resumeMaxEvalsIn
		}
		maxEvalsCap := snap.Config.MaxEvalsCap
		if resumeMaxEvalCap > 0 {
			maxEvalsCap = resumeMaxEvalCap
		}

		opts := advretry.Options{
			NumRetries:   resumeRetries,
			Workers:      resumeWorkers,
			MaxEvalsInit: maxEvalsInit,
			MaxEvalsCap:  maxEvalsCap,
			StopFitness:  snap.Config.StopFitness,
			Logger:       logger,
		}
		stats, evals := advretry.Minimize(context.Background(), p, optimizer, opts, elite, rg)
		fmt.Printf("resumed run %s: best_f=%.6g retries=%d evaluations=%d elapsed=%s\n",
			runID, stats.BestF, stats.RetriesCompleted, evals, time.Since(start))

	default:
		opts := retry.Options{
			NumRetries: resumeRetries,
			Workers:    resumeWorkers,
			Logger:     logger,
		}
		best, stats, evals := retry.Minimize(context.Background(), p, optimizer, opts, rg)
		if best.F > snap.BestF {
			best = problem.Candidate{X: snap.BestX, F: snap.BestF}
		}
		fmt.Printf("resumed run %s: best_f=%.6g retries=%d evaluations=%d elapsed=%s\n",
			runID, best.F, stats.RetriesCompleted, evals, time.Since(start))
	}

	return nil
}
