/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/replicatedhq/gitops-sync/githubapp"
	"github.com/replicatedhq/gitops-sync/reconcilers/advance"
	"github.com/replicatedhq/gitops-sync/store"
)

// defaultDelay is the pause between versions. The sweep deliberately never
// issues concurrent remote calls for the same installation; secondary rate
// limits hit fan-out patterns, not slow sequential ones.
const defaultDelay = time.Second

// ClientProvider mints authenticated GitHub clients per installation.
type ClientProvider interface {
	InstallationClient(ctx context.Context, installationID int64) (*github.Client, error)
}

// Summary reports what one sweep did.
type Summary struct {
	Examined             int
	StatusChanges        int
	Versions404          int
	Clusters404          int
	InstallationsDeleted int
	CommitSHABackfills   int
}

// Job is one reconciliation sweep over every version still awaiting a
// terminal status.
type Job struct {
	store   store.Store
	clients ClientProvider
	delay   time.Duration
	sleep   func(time.Duration)
}

// Option configures the Job.
type Option func(*Job)

// WithDelay sets the pause between version iterations.
func WithDelay(d time.Duration) Option {
	return func(j *Job) { j.delay = d }
}

// WithSleep overrides the sleep function (used by tests).
func WithSleep(f func(time.Duration)) Option {
	return func(j *Job) { j.sleep = f }
}

// New constructs a Job.
func New(s store.Store, clients ClientProvider, opts ...Option) *Job {
	j := &Job{
		store:   s,
		clients: clients,
		delay:   defaultDelay,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every version pending reconciliation, strictly sequentially with
// a fixed delay between iterations. Per-version failures are logged and
// skipped; the sweep always runs to completion and reports its counts. The
// only error Run itself returns is a failure to list the candidates.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	log := clog.FromContext(ctx)

	pending, err := j.store.ListVersionsPendingReconciliation(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing versions pending reconciliation: %w", err)
	}

	var summary Summary
	for i := range pending {
		if i > 0 {
			j.sleep(j.delay)
		}
		pv := &pending[i]
		summary.Examined++
		if err := j.reconcileOne(ctx, pv, &summary); err != nil {
			log.With("watch", pv.WatchID, "sequence", pv.Sequence).Errorf("Reconciling version: %v", err)
		}
	}

	log.With(
		"examined", summary.Examined,
		"status_changes", summary.StatusChanges,
		"versions_404", summary.Versions404,
		"clusters_404", summary.Clusters404,
		"installations_deleted", summary.InstallationsDeleted,
		"sha_backfills", summary.CommitSHABackfills,
	).Info("Poll sweep complete")
	return summary, nil
}

// reconcileOne re-derives one version's status from the remote system of
// record. The three not-found shapes each flip their own flag and end the
// unit of work; everything else is transient and bubbles up to be logged.
func (j *Job) reconcileOne(ctx context.Context, pv *store.PendingVersion, summary *Summary) error {
	gh, err := j.clients.InstallationClient(ctx, pv.InstallationID)
	if errors.Is(err, githubapp.ErrInstallationNotFound) {
		n, markErr := j.store.MarkInstallationDeleted(ctx, pv.InstallationID)
		if markErr != nil {
			return fmt.Errorf("marking installation deleted: %w", markErr)
		}
		summary.InstallationsDeleted += int(n)
		return nil
	}
	if err != nil {
		return fmt.Errorf("minting installation client: %w", err)
	}

	if _, _, err := gh.Repositories.Get(ctx, pv.Owner, pv.Repo); err != nil {
		if githubapp.IsNotFound(err) {
			n, markErr := j.store.MarkClusterRepo404(ctx, pv.InstallationID)
			if markErr != nil {
				return fmt.Errorf("marking cluster repo 404: %w", markErr)
			}
			summary.Clusters404 += int(n)
			return nil
		}
		return fmt.Errorf("getting repository %s/%s: %w", pv.Owner, pv.Repo, err)
	}

	pr, _, err := gh.PullRequests.Get(ctx, pv.Owner, pv.Repo, pv.PullRequestNumber)
	if err != nil {
		if githubapp.IsNotFound(err) {
			if markErr := j.store.MarkVersion404(ctx, pv.WatchID, pv.Sequence); markErr != nil {
				return fmt.Errorf("marking version 404: %w", markErr)
			}
			summary.Versions404++
			return nil
		}
		return fmt.Errorf("getting pull request #%d: %w", pv.PullRequestNumber, err)
	}

	if pv.CommitSHA == "" {
		if err := j.backfillSHA(ctx, gh, pv, summary); err != nil {
			return err
		}
	}

	status := statusFromPullRequest(pr)
	if status == pv.Status {
		return nil
	}
	if !pv.Status.CanTransition(status) {
		return nil
	}
	if err := j.store.UpdateVersionStatus(ctx, pv.WatchID, pv.Sequence, status); err != nil {
		return fmt.Errorf("updating version status: %w", err)
	}
	summary.StatusChanges++

	if status != store.StatusMerged {
		return nil
	}
	w, err := j.store.GetWatch(ctx, pv.WatchID)
	if err != nil {
		return fmt.Errorf("re-reading watch before advance: %w", err)
	}
	if _, err := advance.Apply(ctx, j.store, pv.WatchID, w.CurrentSequence, pv.Sequence, pr.GetMergedAt().Time); err != nil {
		return fmt.Errorf("advancing current version: %w", err)
	}
	return nil
}

// backfillSHA writes the newest commit's sha onto a legacy version that was
// recorded before commit tracking existed.
func (j *Job) backfillSHA(ctx context.Context, gh *github.Client, pv *store.PendingVersion, summary *Summary) error {
	commits, err := githubapp.ListPullRequestCommits(ctx, gh, pv.Owner, pv.Repo, pv.PullRequestNumber)
	if err != nil {
		return fmt.Errorf("listing commits for backfill: %w", err)
	}
	if len(commits) == 0 {
		return nil
	}
	sha := commits[len(commits)-1].GetSHA()
	if err := j.store.BackfillCommitSHA(ctx, pv.WatchID, pv.Sequence, sha); err != nil {
		return fmt.Errorf("backfilling commit sha: %w", err)
	}
	pv.CommitSHA = sha
	summary.CommitSHABackfills++
	return nil
}

func statusFromPullRequest(pr *github.PullRequest) store.Status {
	if pr.GetMerged() {
		return store.StatusMerged
	}
	if pr.GetState() == "closed" {
		return store.StatusClosed
	}
	return store.StatusOpened
}
