/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package advance holds the single rule deciding when a watch's current
// version may move. Both the webhook reconciler and the poll sweep go through
// Apply; neither carries its own copy of the check.
package advance

import (
	"context"
	"time"
)

// Setter persists an advancement. The write must itself be conditional on
// the persisted sequence and report whether it took effect, so the check in
// ShouldAdvance and the write cannot be interleaved by a concurrent writer.
type Setter interface {
	SetCurrentVersion(ctx context.Context, watchID string, sequence int64, deployedAt time.Time) (bool, error)
}

// ShouldAdvance reports whether a watch whose live current sequence is
// current (nil when no version has been deployed) may advance to candidate.
// The current sequence never decreases: an equal or lower candidate is
// always rejected.
func ShouldAdvance(current *int64, candidate int64) bool {
	if current == nil {
		return true
	}
	return candidate > *current
}

// Apply advances the watch's current version to candidate if the rule
// permits it, and reports whether the store accepted the advance. A false
// return with a nil error means either the rule rejected the candidate or a
// concurrent writer advanced the watch past it first; both are normal.
func Apply(ctx context.Context, s Setter, watchID string, current *int64, candidate int64, deployedAt time.Time) (bool, error) {
	if !ShouldAdvance(current, candidate) {
		return false, nil
	}
	return s.SetCurrentVersion(ctx, watchID, candidate, deployedAt)
}
