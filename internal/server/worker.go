package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/retryopt/internal/advretry"
	"github.com/cwbudde/retryopt/internal/bench"
	"github.com/cwbudde/retryopt/internal/opt"
	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/retry"
	"github.com/cwbudde/retryopt/internal/rng"
	"github.com/cwbudde/retryopt/internal/store"
)

// buildProblem constructs a Problem from a job's registered objective and
// explicit bounds, applying EvalTimeoutMS if the job requested one.
func buildProblem(config RunConfig) (*problem.Problem, error) {
	obj, err := bench.Lookup(config.Objective)
	if err != nil {
		return nil, err
	}
	bounds, err := problem.NewBounds(config.Lo, config.Hi)
	if err != nil {
		return nil, err
	}
	p := problem.New(obj.Fn, bounds, problem.ConcurrencySafe)
	if config.EvalTimeoutMS > 0 {
		p.Timeout = time.Duration(config.EvalTimeoutMS) * time.Millisecond
	}
	return p, nil
}

// buildOptimizer constructs the per-run optimizer named by config.Algorithm.
func buildOptimizer(config RunConfig) (opt.Optimizer, error) {
	switch config.Algorithm {
	case "", "cmaes":
		return opt.CMAAdapter{}, nil
	case "de":
		return opt.DEAdapter{}, nil
	case "dual-annealing":
		return opt.DualAnnealing{}, nil
	case "harris-hawks":
		return opt.HarrisHawks{}, nil
	case "sequence":
		return &opt.Sequence{Optimizers: []opt.Optimizer{opt.CMAAdapter{}, opt.DEAdapter{}}}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", config.Algorithm)
	}
}

// runJob executes a job's optimization run in the background, dispatching
// to simple or coordinated retry according to Config.Engine, and saves
// periodic snapshots through checkpointStore when CheckpointIntervalSeconds
// is set. A snapshot holds the job's best point, not the elite store, and
// Job.BestX is only filled in once the engine returns, so ticks before
// that save nothing.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	slog.Info("starting job", "job_id", jobID, "objective", job.Config.Objective, "engine", job.Config.Engine)

	p, err := buildProblem(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	optimizer, err := buildOptimizer(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointIntervalSeconds > 0 {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	}

	start := time.Now()
	seed := rng.New(uint64(job.Config.Seed))

	switch job.Config.Engine {
	case "advretry":
		runAdvancedRetryJob(ctx, jm, p, optimizer, job.Config, jobID, seed)
	default:
		runSimpleRetryJob(ctx, jm, p, optimizer, job.Config, jobID, seed)
	}

	close(progressDone)
	close(checkpointDone)
	elapsed := time.Since(start)

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	endTime := time.Now()
	finalJob, _ := jm.GetJob(jobID)
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.EndTime = &endTime
	})

	slog.Info("job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"best_f", finalJob.BestF,
		"evaluations", finalJob.Evaluations,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:       jobID,
		State:       StateCompleted,
		Retries:     finalJob.Retries,
		BestF:       finalJob.BestF,
		StoreSize:   finalJob.StoreSize,
		EvalsPerSec: finalJob.EvalsPerSec(),
		Timestamp:   time.Now(),
	})

	return nil
}

func runSimpleRetryJob(ctx context.Context, jm *JobManager, p *problem.Problem, optimizer opt.Optimizer, config RunConfig, jobID string, seed *rng.Source) {
	opts := retry.Options{
		NumRetries: config.NumRetries,
		Workers:    config.Workers,
		Logger:     slog.Default(),
	}
	best, stats, evals := retry.Minimize(ctx, p, optimizer, opts, seed)

	jm.UpdateJob(jobID, func(j *Job) {
		j.BestX = best.X
		j.BestF = best.F
		j.MeanF = stats.MeanF
		j.StdF = stats.StdF
		j.Retries = stats.RetriesCompleted
		j.Evaluations = evals
	})
}

func runAdvancedRetryJob(ctx context.Context, jm *JobManager, p *problem.Problem, optimizer opt.Optimizer, config RunConfig, jobID string, seed *rng.Source) {
	opts := advretry.Options{
		NumRetries:    config.NumRetries,
		Workers:       config.Workers,
		MaxEvalsInit:  config.MaxEvalsInit,
		MaxEvalsCap:   config.MaxEvalsCap,
		StopFitness:   config.StopFitness,
		StoreCapacity: 500,
		Logger:        slog.Default(),
	}
	stats, evals := advretry.Minimize(ctx, p, optimizer, opts, nil, seed)

	jm.UpdateJob(jobID, func(j *Job) {
		j.BestX = stats.BestX
		j.BestF = stats.BestF
		j.Retries = stats.RetriesCompleted
		j.Evaluations = evals
		j.StoreSize = stats.StoreSize
		j.WorstStoreF = stats.WorstStoreF
	})
}

// monitorProgress periodically broadcasts progress events while a job runs.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:       jobID,
				State:       job.State,
				Retries:     job.Retries,
				BestF:       job.BestF,
				StoreSize:   job.StoreSize,
				EvalsPerSec: job.EvalsPerSec(),
				Timestamp:   time.Now(),
			})
		}
	}
}

func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("job failed", "job_id", jobID, "error", err)
}

func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves a snapshot of the job's best-so-far
// state through checkpointStore.
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveSnapshot(jm, checkpointStore, jobID); err != nil {
				slog.Error("failed to save snapshot", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveSnapshot persists the job's current best state as a resumable
// snapshot.
func saveSnapshot(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if len(job.BestX) == 0 {
		slog.Debug("skipping snapshot, no best point yet", "job_id", jobID)
		return nil
	}

	snapshot := store.NewSnapshot(jobID, job.BestX, job.BestF, job.InitialF, job.Retries, job.Config)

	if err := checkpointStore.SaveSnapshot(jobID, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Info("snapshot saved", "job_id", jobID, "retries", job.Retries, "best_f", job.BestF)
	return nil
}
