/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import "time"

// Status is the lifecycle state of a Version's pull request.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpened  Status = "opened"
	StatusMerged  Status = "merged"
	StatusClosed  Status = "closed"
)

// Terminal reports whether the status is an end state for a pull request.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusClosed
}

// CanTransition reports whether a version may move from s to next. Once a
// version reaches a terminal status it never reverts to a non-terminal one,
// regardless of which reconciler derived the candidate.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() && !next.Terminal() {
		return false
	}
	return true
}

// GitOpsLink is a cluster's binding to a GitOps repository and the app
// installation that grants access to it. IsDeleted and Is404 are advisory:
// they gate reconciliation but never remove the cluster.
type GitOpsLink struct {
	Owner          string
	Repo           string
	Branch         string
	Path           string
	InstallationID int64
	IsDeleted      bool
	Is404          bool
}

// Cluster is a deployment target. GitOps is nil for clusters that have no
// repository linkage.
type Cluster struct {
	ID     string
	Slug   string
	GitOps *GitOpsLink
}

// Watch is one deployed application instance on a cluster. CurrentSequence is
// nil until a version has been deployed.
type Watch struct {
	ID                string
	ClusterID         string
	CurrentSequence   *int64
	CurrentDeployedAt *time.Time
}

// Version is a recorded release tied to a watch and a pull request. CommitSHA
// is empty on rows created before commit tracking existed; those are matched
// by pull request number instead.
type Version struct {
	WatchID           string
	Sequence          int64
	PullRequestNumber int
	CommitSHA         string
	Status            Status
	Is404             bool
	LastSyncedAt      time.Time
}

// PendingVersion is a version awaiting reconciliation, joined with the
// linkage columns the poll sweep needs to reach the remote API.
type PendingVersion struct {
	Version

	ClusterID      string
	Owner          string
	Repo           string
	InstallationID int64
}

// InstallationRecord is the audit row persisted when an app installation is
// created.
type InstallationRecord struct {
	InstallationID int64
	AccountLogin   string
	AccountType    string
	MemberCount    int
	ProfileURL     string
	Sender         string
	CreatedAt      time.Time
}
