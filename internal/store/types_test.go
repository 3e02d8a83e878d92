package store

import (
	"encoding/json"
	"testing"
	"time"
)

func validConfig() RunConfig {
	return RunConfig{
		Objective: "sphere",
		Algorithm: "cmaes",
		Dim:       3,
		Lo:        []float64{-5, -5, -5},
		Hi:        []float64{5, 5, 5},
		Seed:      42,
	}
}

func validSnapshot() *Snapshot {
	return &Snapshot{
		RunID:     "run-1",
		BestX:     []float64{0.1, 0.2, 0.3},
		BestF:     0.014,
		InitialF:  12.5,
		Iteration: 17,
		Timestamp: time.Date(2025, 10, 23, 10, 30, 0, 0, time.UTC),
		Config:    validConfig(),
	}
}

func TestSnapshot_JSONSerialization(t *testing.T) {
	original := validSnapshot()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshaled JSON is empty")
	}

	var restored Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}

	if restored.RunID != original.RunID {
		t.Errorf("RunID mismatch: expected %s, got %s", original.RunID, restored.RunID)
	}
	if restored.BestF != original.BestF {
		t.Errorf("BestF mismatch: expected %f, got %f", original.BestF, restored.BestF)
	}
	if restored.InitialF != original.InitialF {
		t.Errorf("InitialF mismatch: expected %f, got %f", original.InitialF, restored.InitialF)
	}
	if restored.Iteration != original.Iteration {
		t.Errorf("Iteration mismatch: expected %d, got %d", original.Iteration, restored.Iteration)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, restored.Timestamp)
	}
	if len(restored.BestX) != len(original.BestX) {
		t.Fatalf("BestX length mismatch: expected %d, got %d", len(original.BestX), len(restored.BestX))
	}
	for i := range original.BestX {
		if restored.BestX[i] != original.BestX[i] {
			t.Errorf("BestX[%d] mismatch: expected %f, got %f", i, original.BestX[i], restored.BestX[i])
		}
	}
	if restored.Config.Objective != original.Config.Objective {
		t.Errorf("Config.Objective mismatch: expected %s, got %s", original.Config.Objective, restored.Config.Objective)
	}
	if restored.Config.Algorithm != original.Config.Algorithm {
		t.Errorf("Config.Algorithm mismatch: expected %s, got %s", original.Config.Algorithm, restored.Config.Algorithm)
	}
	if restored.Config.Dim != original.Config.Dim {
		t.Errorf("Config.Dim mismatch: expected %d, got %d", original.Config.Dim, restored.Config.Dim)
	}
}

func TestSnapshot_JSONIndented(t *testing.T) {
	s := validSnapshot()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal with indent: %v", err)
	}

	var restored Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal indented JSON: %v", err)
	}
	if restored.RunID != s.RunID {
		t.Errorf("RunID mismatch after indented serialization")
	}
}

func TestSnapshot_Validate_Valid(t *testing.T) {
	s := validSnapshot()
	if err := s.Validate(); err != nil {
		t.Errorf("Valid snapshot should not have validation error: %v", err)
	}
}

func TestSnapshot_Validate_EmptyRunID(t *testing.T) {
	s := validSnapshot()
	s.RunID = ""

	err := s.Validate()
	if err == nil {
		t.Fatal("Expected validation error for empty RunID")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("Expected ValidationError, got %T", err)
	}
}

func TestSnapshot_Validate_NilBestX(t *testing.T) {
	s := validSnapshot()
	s.BestX = nil

	if err := s.Validate(); err == nil {
		t.Fatal("Expected validation error for nil BestX")
	}
}

func TestSnapshot_Validate_EmptyBestX(t *testing.T) {
	s := validSnapshot()
	s.BestX = []float64{}

	if err := s.Validate(); err == nil {
		t.Fatal("Expected validation error for empty BestX")
	}
}

func TestSnapshot_Validate_DimMismatch(t *testing.T) {
	s := validSnapshot()
	s.Config.Dim = 5 // BestX has 3 elements

	err := s.Validate()
	if err == nil {
		t.Fatal("Expected validation error for BestX/Dim length mismatch")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("Expected ValidationError, got %T", err)
	}
}

func TestSnapshot_Validate_NegativeIteration(t *testing.T) {
	s := validSnapshot()
	s.Iteration = -10

	if err := s.Validate(); err == nil {
		t.Fatal("Expected validation error for negative Iteration")
	}
}

func TestSnapshot_Validate_ZeroTimestamp(t *testing.T) {
	s := validSnapshot()
	s.Timestamp = time.Time{}

	if err := s.Validate(); err == nil {
		t.Fatal("Expected validation error for zero timestamp")
	}
}

func TestSnapshot_Validate_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"empty objective", func(c *RunConfig) { c.Objective = "" }},
		{"empty algorithm", func(c *RunConfig) { c.Algorithm = "" }},
		{"zero dim", func(c *RunConfig) { c.Dim = 0 }},
		{"negative dim", func(c *RunConfig) { c.Dim = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSnapshot()
			tc.mutate(&s.Config)

			if err := s.Validate(); err == nil {
				t.Fatalf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestSnapshot_IsCompatible_Compatible(t *testing.T) {
	s := &Snapshot{Config: validConfig()}

	if err := s.IsCompatible(validConfig()); err != nil {
		t.Errorf("Compatible configs should not return error: %v", err)
	}
}

func TestSnapshot_IsCompatible_DifferentObjective(t *testing.T) {
	s := &Snapshot{Config: validConfig()}
	cfg := validConfig()
	cfg.Objective = "rastrigin"

	err := s.IsCompatible(cfg)
	if err == nil {
		t.Fatal("Expected compatibility error for different Objective")
	}
	if _, ok := err.(*CompatibilityError); !ok {
		t.Errorf("Expected CompatibilityError, got %T", err)
	}
}

func TestSnapshot_IsCompatible_DifferentAlgorithm(t *testing.T) {
	s := &Snapshot{Config: validConfig()}
	cfg := validConfig()
	cfg.Algorithm = "de"

	if err := s.IsCompatible(cfg); err == nil {
		t.Fatal("Expected compatibility error for different Algorithm")
	}
}

func TestSnapshot_IsCompatible_DifferentDim(t *testing.T) {
	s := &Snapshot{Config: validConfig()}
	cfg := validConfig()
	cfg.Dim = 10

	if err := s.IsCompatible(cfg); err == nil {
		t.Fatal("Expected compatibility error for different Dim")
	}
}

func TestSnapshotInfo_FromSnapshot(t *testing.T) {
	s := validSnapshot()

	info := s.ToInfo()

	if info.RunID != s.RunID {
		t.Errorf("RunID mismatch: expected %s, got %s", s.RunID, info.RunID)
	}
	if info.BestF != s.BestF {
		t.Errorf("BestF mismatch: expected %f, got %f", s.BestF, info.BestF)
	}
	if info.Iteration != s.Iteration {
		t.Errorf("Iteration mismatch: expected %d, got %d", s.Iteration, info.Iteration)
	}
	if !info.Timestamp.Equal(s.Timestamp) {
		t.Errorf("Timestamp mismatch")
	}
	if info.Algorithm != s.Config.Algorithm {
		t.Errorf("Algorithm mismatch: expected %s, got %s", s.Config.Algorithm, info.Algorithm)
	}
	if info.Objective != s.Config.Objective {
		t.Errorf("Objective mismatch: expected %s, got %s", s.Config.Objective, info.Objective)
	}
	if info.Dim != s.Config.Dim {
		t.Errorf("Dim mismatch: expected %d, got %d", s.Config.Dim, info.Dim)
	}
}

func TestNewSnapshot(t *testing.T) {
	runID := "test-run"
	bestX := []float64{1, 2, 3}
	bestF := 0.123
	initialF := 0.5
	iteration := 500
	config := validConfig()

	s := NewSnapshot(runID, bestX, bestF, initialF, iteration, config)

	if s.RunID != runID {
		t.Errorf("RunID mismatch: expected %s, got %s", runID, s.RunID)
	}
	if s.BestF != bestF {
		t.Errorf("BestF mismatch: expected %f, got %f", bestF, s.BestF)
	}
	if s.InitialF != initialF {
		t.Errorf("InitialF mismatch: expected %f, got %f", initialF, s.InitialF)
	}
	if s.Iteration != iteration {
		t.Errorf("Iteration mismatch: expected %d, got %d", iteration, s.Iteration)
	}
	if s.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if len(s.BestX) != len(bestX) {
		t.Errorf("BestX length mismatch")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("NewSnapshot produced invalid snapshot: %v", err)
	}
}
