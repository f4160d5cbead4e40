/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"time"
)

// Store is the persistence surface shared by the webhook and poll
// reconcilers. Implementations must make every write idempotent: re-applying
// the same status or marking an already-marked row is a no-op.
type Store interface {
	// ListClustersForRepo returns clusters whose GitOps linkage points at the
	// given repository. Clusters without a linkage are never returned.
	ListClustersForRepo(ctx context.Context, owner, repo string) ([]Cluster, error)

	// ListWatchesForCluster returns every watch deployed to the cluster.
	ListWatchesForCluster(ctx context.Context, clusterID string) ([]Watch, error)

	// GetWatch returns the watch including its live current sequence.
	GetWatch(ctx context.Context, watchID string) (*Watch, error)

	// GetVersionByCommit returns the version recorded for the commit, or nil
	// when no version matches.
	GetVersionByCommit(ctx context.Context, watchID, sha string) (*Version, error)

	// ListPendingVersions returns versions newer than the watch's current
	// sequence, newest first.
	ListPendingVersions(ctx context.Context, watchID string) ([]Version, error)

	// ListPastVersions returns versions at or below the watch's current
	// sequence, newest first.
	ListPastVersions(ctx context.Context, watchID string) ([]Version, error)

	// UpdateVersionStatus sets the version's status and touches its
	// last-synced timestamp. A terminal status is never replaced with a
	// non-terminal one.
	UpdateVersionStatus(ctx context.Context, watchID string, sequence int64, status Status) error

	// SetCurrentVersion advances the watch's current version. The write is
	// conditional on the candidate sequence being strictly greater than the
	// persisted one (or the persisted one being unset); it reports whether
	// the advance happened.
	SetCurrentVersion(ctx context.Context, watchID string, sequence int64, deployedAt time.Time) (bool, error)

	// ListVersionsPendingReconciliation returns every version in a
	// non-terminal status, not marked 404, whose cluster linkage is neither
	// deleted nor 404.
	ListVersionsPendingReconciliation(ctx context.Context) ([]PendingVersion, error)

	// MarkVersion404 flags the version as missing upstream. Its status is
	// left unchanged.
	MarkVersion404(ctx context.Context, watchID string, sequence int64) error

	// BackfillCommitSHA writes the commit sha onto a legacy version that was
	// recorded without one.
	BackfillCommitSHA(ctx context.Context, watchID string, sequence int64, sha string) error

	// AttachInstallation points every cluster linked to the account, whose
	// installation had been marked deleted, at the new installation.
	AttachInstallation(ctx context.Context, accountLogin string, installationID int64) error

	// MarkInstallationDeleted flags every cluster linkage on the installation
	// as deleted and returns how many rows changed.
	MarkInstallationDeleted(ctx context.Context, installationID int64) (int64, error)

	// MarkClusterRepo404 flags every cluster linkage on the installation as
	// repository-not-found and returns how many rows changed.
	MarkClusterRepo404(ctx context.Context, installationID int64) (int64, error)

	// ClearClusterRepo404 clears the repository-not-found flag for linkages
	// pointing at the repository.
	ClearClusterRepo404(ctx context.Context, owner, repo string) error

	// CreateInstallationRecord persists the installation audit row, replacing
	// any existing row for the same installation.
	CreateInstallationRecord(ctx context.Context, rec InstallationRecord) error

	// DeleteInstallationRecord removes the installation audit row.
	DeleteInstallationRecord(ctx context.Context, installationID int64) error
}
