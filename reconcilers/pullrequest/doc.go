/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pullrequest reconciles real-time pull_request webhook events onto
// the locally tracked versions. The primary strategy matches versions by
// commit sha, in commit-timestamp order; a legacy fallback matches by pull
// request number only when no sha matched anywhere, so the precedence stays
// auditable. Webhook delivery is best-effort upstream, so anything missed
// here is picked up by the poll sweep.
package pullrequest
