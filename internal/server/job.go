package server

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/retryopt/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// RunConfig is an alias to avoid duplication with store.RunConfig.
type RunConfig = store.RunConfig

// Job represents a server-managed optimization run (simple or coordinated
// retry, selected by Config.Engine).
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      RunConfig  `json:"config"`
	BestX       []float64  `json:"bestX,omitempty"`
	BestF       float64    `json:"bestF"`
	InitialF    float64    `json:"initialF"`
	MeanF       float64    `json:"meanF,omitempty"`       // simple-retry cross-run mean, once complete
	StdF        float64    `json:"stdF,omitempty"`        // simple-retry cross-run stddev, once complete
	StoreSize   int        `json:"storeSize,omitempty"`   // populated for advretry jobs
	WorstStoreF float64    `json:"worstStoreF,omitempty"` // populated for advretry jobs
	Retries     int        `json:"retries"`
	Evaluations int        `json:"evaluations"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EvalsPerSec returns the job's throughput so far: total evaluations over
// elapsed wall time, using EndTime once set and time.Now otherwise.
func (j *Job) EvalsPerSec() float64 {
	end := time.Now()
	if j.EndTime != nil {
		end = *j.EndTime
	}
	elapsed := end.Sub(j.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(j.Evaluations) / elapsed
}

// JobManager manages the lifecycle of jobs.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration.
func (jm *JobManager) CreateJob(config RunConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		BestF:     math.Inf(1),
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job
}

// GetJob retrieves a job by ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	return job, exists
}

// ListJobs returns all jobs.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state.
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job)
		}
	}
	return runningJobs
}
