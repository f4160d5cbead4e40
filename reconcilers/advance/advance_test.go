/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package advance

import (
	"context"
	"testing"
	"time"
)

func TestShouldAdvance(t *testing.T) {
	seq := func(n int64) *int64 { return &n }

	tests := []struct {
		name      string
		current   *int64
		candidate int64
		want      bool
	}{
		{name: "no current version yet", current: nil, candidate: 1, want: true},
		{name: "strictly greater", current: seq(3), candidate: 5, want: true},
		{name: "equal never advances", current: seq(5), candidate: 5, want: false},
		{name: "lower never advances", current: seq(5), candidate: 3, want: false},
		{name: "zero candidate against nil", current: nil, candidate: 0, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldAdvance(tc.current, tc.candidate); got != tc.want {
				t.Errorf("ShouldAdvance(%v, %d) = %v, want %v", tc.current, tc.candidate, got, tc.want)
			}
		})
	}
}

type recordingSetter struct {
	calls   int
	watchID string
	seq     int64
	result  bool
}

func (r *recordingSetter) SetCurrentVersion(_ context.Context, watchID string, sequence int64, _ time.Time) (bool, error) {
	r.calls++
	r.watchID = watchID
	r.seq = sequence
	return r.result, nil
}

func TestApplySkipsRejectedCandidates(t *testing.T) {
	current := int64(5)
	s := &recordingSetter{result: true}

	advanced, err := Apply(context.Background(), s, "w1", &current, 3, time.Now())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if advanced {
		t.Error("Apply() advanced a lower sequence")
	}
	if s.calls != 0 {
		t.Errorf("setter called %d times for rejected candidate, want 0", s.calls)
	}
}

func TestApplyWritesAcceptedCandidates(t *testing.T) {
	current := int64(5)
	s := &recordingSetter{result: true}

	advanced, err := Apply(context.Background(), s, "w1", &current, 8, time.Now())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !advanced {
		t.Error("Apply() did not advance a higher sequence")
	}
	if s.calls != 1 || s.watchID != "w1" || s.seq != 8 {
		t.Errorf("setter saw (%d calls, %q, %d), want (1, \"w1\", 8)", s.calls, s.watchID, s.seq)
	}
}

func TestApplyReportsLostRace(t *testing.T) {
	// The store's conditional write rejecting the sequence is not an error.
	s := &recordingSetter{result: false}

	advanced, err := Apply(context.Background(), s, "w1", nil, 2, time.Now())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if advanced {
		t.Error("Apply() reported an advance the store rejected")
	}
}
