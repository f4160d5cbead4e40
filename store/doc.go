/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package store defines the entities tracked by the GitOps sync subsystem
// (clusters, watches, versions, installation audit rows) and the persistence
// surface both reconcilers write through.
//
// The Postgres implementation performs the current-version advance as a
// single conditional UPDATE keyed on the persisted sequence, so concurrent
// webhook and poll executions cannot move a watch's current version
// backwards even when both pass the pure advancement check.
package store
