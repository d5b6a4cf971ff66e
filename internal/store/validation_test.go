package store

import (
	"testing"
	"time"
)

func TestValidateSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *Snapshot)
		hasDelay  func(string) bool
		wantIssue string
	}{
		{"valid", func(s *Snapshot) {}, nil, ""},
		{"count mismatch", func(s *Snapshot) { s.NumConnections = 4 }, nil, "count-mismatch"},
		{"zero source", func(s *Snapshot) { s.Connections[0].Source = 0 }, nil, "unknown-node"},
		{"zero target", func(s *Snapshot) { s.Connections[1].Target = 0 }, nil, "unknown-node"},
		{"delay above window", func(s *Snapshot) { s.Connections[2].Delay = 3 }, nil, "delay-out-of-window"},
		{"delay below window", func(s *Snapshot) { s.Connections[0].Delay = 0.5 }, nil, "delay-out-of-window"},
		{"delay ignored for undelayed model", func(s *Snapshot) {
			s.Connections[2].Delay = 50
		}, func(m string) bool { return m != "stdp_synapse" }, ""},
		{"inconsistent model", func(s *Snapshot) { s.Connections[1].SynapseModel = "other" }, nil, "inconsistent-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot("v", time.Time{})
			tt.mutate(snap)
			errs := ValidateSnapshot(snap, tt.hasDelay)
			if tt.wantIssue == "" {
				if len(errs) != 0 {
					t.Errorf("ValidateSnapshot() = %v, want none", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("ValidateSnapshot() = %v, want exactly one %s", errs, tt.wantIssue)
			}
			if errs[0].Issue != tt.wantIssue {
				t.Errorf("Issue = %q, want %q", errs[0].Issue, tt.wantIssue)
			}
			if errs[0].String() == "" {
				t.Error("String() is empty")
			}
		})
	}
}
