/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package poll implements the scheduled reconciliation sweep. Webhook
// delivery is best-effort: deliveries drop, arrive late, or never fire for
// changes made outside the tracked event types. The sweep re-derives every
// non-terminal version's status directly from the remote API and applies the
// same update and advancement rules as the event path, so the two channels
// converge on the same rows.
package poll
