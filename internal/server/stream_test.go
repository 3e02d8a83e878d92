package server

import (
	"testing"
	"time"
)

func TestEventBroadcaster_CoalescesUnchangedTicks(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateRunning, Retries: 1, BestF: 5})
	select {
	case <-ch:
	default:
		t.Fatal("expected the first event to be delivered")
	}

	// same state, same retries, no better BestF: should be coalesced away.
	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateRunning, Retries: 1, BestF: 5})
	select {
	case <-ch:
		t.Fatal("expected a no-progress tick to be coalesced, not delivered")
	default:
	}

	// an actual improvement must always go through.
	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateRunning, Retries: 1, BestF: 4})
	select {
	case <-ch:
	default:
		t.Fatal("expected an improving tick to be delivered")
	}

	// a state transition must always go through even with an unchanged BestF.
	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateCompleted, Retries: 1, BestF: 4})
	select {
	case <-ch:
	default:
		t.Fatal("expected a state transition to be delivered")
	}
}

func TestJob_EvalsPerSec(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	j := &Job{StartTime: start, Evaluations: 1000}
	rate := j.EvalsPerSec()
	if rate <= 0 {
		t.Fatalf("expected a positive rate, got %v", rate)
	}

	end := start.Add(2 * time.Second)
	j.EndTime = &end
	if got := j.EvalsPerSec(); got != 500 {
		t.Errorf("expected exactly 500 evals/sec once EndTime is set, got %v", got)
	}
}
