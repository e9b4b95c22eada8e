package types

import (
	"errors"
	"testing"
	"time"
)

func TestEdgeCanonical(t *testing.T) {
	tests := []struct {
		in, want Edge
	}{
		{Edge{U: 1, V: 2}, Edge{U: 1, V: 2}},
		{Edge{U: 9, V: -3}, Edge{U: -3, V: 9}},
		{Edge{U: 4, V: 4}, Edge{U: 4, V: 4}},
	}
	for _, tt := range tests {
		if got := tt.in.Canonical(); got != tt.want {
			t.Errorf("%v.Canonical() = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !(Edge{U: 4, V: 4}).IsSelfLoop() {
		t.Error("expected (4, 4) to be a self-loop")
	}
	if (Edge{U: 4, V: 5}).IsSelfLoop() {
		t.Error("(4, 5) is not a self-loop")
	}
}

func TestParseEdge(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    Edge
		wantErr bool
	}{
		{"simple", []string{"1", "2"}, Edge{U: 1, V: 2}, false},
		{"spaces", []string{" 7 ", "\t-8"}, Edge{U: 7, V: -8}, false},
		{"self loop", []string{"3", "3"}, Edge{U: 3, V: 3}, false},
		{"max int64", []string{"9223372036854775807", "0"}, Edge{U: 9223372036854775807, V: 0}, false},
		{"overflow", []string{"9223372036854775808", "0"}, Edge{}, true},
		{"not a number", []string{"a", "2"}, Edge{}, true},
		{"empty field", []string{"1", ""}, Edge{}, true},
		{"one field", []string{"1"}, Edge{}, true},
		{"three fields", []string{"1", "2", "3"}, Edge{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEdge(tt.fields)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEdge) {
					t.Errorf("expected ErrInvalidEdge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStatus(t *testing.T) {
	for _, s := range []RunStatus{RunRunning, RunConverged, RunNotConverged, RunFailed, RunCanceled} {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
		if s.IsTerminal() == (s == RunRunning) {
			t.Errorf("%s: IsTerminal() = %v", s, s.IsTerminal())
		}
	}
	if RunStatus("paused").IsValid() {
		t.Error("paused should not be valid")
	}
}

func TestRunValidate(t *testing.T) {
	valid := func() Run {
		return Run{ID: "r", Status: RunRunning, Partitions: 4, MaxIterations: 100, StartedAt: time.Now()}
	}

	run := valid()
	if err := run.Validate(); err != nil {
		t.Fatalf("valid run rejected: %v", err)
	}

	mutations := map[string]func(*Run){
		"missing id":      func(r *Run) { r.ID = "" },
		"bad status":      func(r *Run) { r.Status = "paused" },
		"zero partitions": func(r *Run) { r.Partitions = 0 },
		"zero cap":        func(r *Run) { r.MaxIterations = 0 },
		"negative edges":  func(r *Run) { r.InputEdges = -1 },
	}
	for name, mutate := range mutations {
		run := valid()
		mutate(&run)
		if err := run.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	run := Run{StartedAt: start, FinishedAt: &end}
	if got := run.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}

	running := Run{StartedAt: time.Now().Add(-time.Minute)}
	if got := running.Duration(); got < time.Minute {
		t.Errorf("running Duration() = %v, want at least 1m", got)
	}
}
