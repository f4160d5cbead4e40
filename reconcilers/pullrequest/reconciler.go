/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pullrequest

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

// ClientProvider mints authenticated GitHub clients per installation.
type ClientProvider interface {
	InstallationClient(ctx context.Context, installationID int64) (*github.Client, error)
}

// Reconciler applies pull_request webhook events to the versions tracking
// that pull request.
type Reconciler struct {
	store   store.Store
	clients ClientProvider
}

// New constructs a Reconciler.
func New(s store.Store, clients ClientProvider) *Reconciler {
	return &Reconciler{store: s, clients: clients}
}

// Reconcile fans the event out to every cluster linked to the event's
// repository and every watch on those clusters. Failures on one cluster or
// watch are logged and skipped; they never abort the rest of the fan-out.
func (r *Reconciler) Reconcile(ctx context.Context, ev *github.PullRequestEvent) error {
	log := clog.FromContext(ctx)

	status, ok := statusFromEvent(ev)
	if !ok {
		log.With("action", ev.GetAction()).Debug("Ignoring pull request action")
		return nil
	}

	owner := ev.GetRepo().GetOwner().GetLogin()
	repo := ev.GetRepo().GetName()
	number := ev.GetPullRequest().GetNumber()
	mergedAt := ev.GetPullRequest().GetMergedAt().Time

	log = log.With("repo", owner+"/"+repo, "pr", number, "status", string(status))

	clusters, err := r.store.ListClustersForRepo(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("listing clusters for %s/%s: %w", owner, repo, err)
	}

	// Linkages already flagged deleted or repository-not-found are not
	// reconciled; the installation reconciler clears the flags when access
	// comes back.
	var active []store.Cluster
	for _, cluster := range clusters {
		if g := cluster.GitOps; g != nil && !g.IsDeleted && !g.Is404 {
			active = append(active, cluster)
		}
	}

	matched := false
	gone := map[int64]bool{}
	for _, cluster := range active {
		if gone[cluster.GitOps.InstallationID] {
			continue
		}
		m, revoked := r.reconcileCluster(ctx, cluster, owner, repo, number, status, mergedAt)
		if revoked {
			gone[cluster.GitOps.InstallationID] = true
			continue
		}
		if m {
			matched = true
		}
	}

	if !matched {
		// Versions recorded before commit tracking existed carry no sha;
		// fall back to matching by pull request number.
		log.Debug("No commit matched any version, trying pull request number")
		r.reconcileByNumber(ctx, active, gone, number, status, mergedAt)
	}
	return nil
}

// statusFromEvent derives the version status the event represents. The
// merged flag wins over the action name: GitHub delivers merges as "closed"
// with merged set.
func statusFromEvent(ev *github.PullRequestEvent) (store.Status, bool) {
	action := ev.GetAction()
	switch action {
	case "opened", "closed", "reopened":
	default:
		return "", false
	}
	if ev.GetPullRequest().GetMerged() {
		return store.StatusMerged, true
	}
	switch action {
	case "closed":
		return store.StatusClosed, true
	default:
		return store.StatusOpened, true
	}
}

// reconcileCluster processes one cluster's watches. It reports whether any
// commit sha matched a version, and whether the cluster's installation turned
// out to be revoked.
func (r *Reconciler) reconcileCluster(ctx context.Context, cluster store.Cluster, owner, repo string, number int, status store.Status, mergedAt time.Time) (matched, revoked bool) {
	log := clog.FromContext(ctx).With("cluster", cluster.ID)

	gh, err := r.clients.InstallationClient(ctx, cluster.GitOps.InstallationID)
	if errors.Is(err, githubapp.ErrInstallationNotFound) {
		// The user uninstalled the app; the linkage is dead, not flaky.
		n, markErr := r.store.MarkInstallationDeleted(ctx, cluster.GitOps.InstallationID)
		if markErr != nil {
			log.Errorf("Marking installation deleted: %v", markErr)
			return false, true
		}
		log.With("installation", cluster.GitOps.InstallationID, "clusters", n).Info("Installation revoked, linkages marked deleted")
		return false, true
	}
	if err != nil {
		log.Errorf("Minting installation client: %v", err)
		return false, false
	}
	commits, err := githubapp.ListPullRequestCommits(ctx, gh, owner, repo, number)
	if err != nil {
		log.Errorf("Listing pull request commits: %v", err)
		return false, false
	}

	watches, err := r.store.ListWatchesForCluster(ctx, cluster.ID)
	if err != nil {
		log.Errorf("Listing watches: %v", err)
		return false, false
	}

	for _, w := range watches {
		for _, commit := range commits {
			v, err := r.store.GetVersionByCommit(ctx, w.ID, commit.GetSHA())
			if err != nil {
				log.With("watch", w.ID).Errorf("Looking up version by commit: %v", err)
				continue
			}
			if v == nil {
				continue
			}
			matched = true
			r.applyStatus(ctx, v, status, mergedAt)
		}
	}
	return matched, false
}

// reconcileByNumber is the legacy fallback: scan each watch's pending then
// past versions for the pull request number, apply the update to the first
// match, and stop. It is best-effort and inherently less precise than the
// commit match.
func (r *Reconciler) reconcileByNumber(ctx context.Context, clusters []store.Cluster, gone map[int64]bool, number int, status store.Status, mergedAt time.Time) {
	log := clog.FromContext(ctx)

	for _, cluster := range clusters {
		if gone[cluster.GitOps.InstallationID] {
			continue
		}
		watches, err := r.store.ListWatchesForCluster(ctx, cluster.ID)
		if err != nil {
			log.With("cluster", cluster.ID).Errorf("Listing watches: %v", err)
			continue
		}
		for _, w := range watches {
			v, err := r.findByNumber(ctx, w.ID, number)
			if err != nil {
				log.With("watch", w.ID).Errorf("Scanning versions by number: %v", err)
				continue
			}
			if v == nil {
				continue
			}
			r.applyStatus(ctx, v, status, mergedAt)
			return
		}
	}
}

func (r *Reconciler) findByNumber(ctx context.Context, watchID string, number int) (*store.Version, error) {
	pending, err := r.store.ListPendingVersions(ctx, watchID)
	if err != nil {
		return nil, fmt.Errorf("listing pending versions: %w", err)
	}
	past, err := r.store.ListPastVersions(ctx, watchID)
	if err != nil {
		return nil, fmt.Errorf("listing past versions: %w", err)
	}
	for _, list := range [][]store.Version{pending, past} {
		for i := range list {
			if list[i].PullRequestNumber == number {
				return &list[i], nil
			}
		}
	}
	return nil, nil
}

// applyStatus writes the derived status onto the version and, for merges,
// attempts the bounded current-version advance.
func (r *Reconciler) applyStatus(ctx context.Context, v *store.Version, status store.Status, mergedAt time.Time) {
	log := clog.FromContext(ctx).With("watch", v.WatchID, "sequence", v.Sequence)

	if !v.Status.CanTransition(status) {
		log.With("from", string(v.Status), "to", string(status)).Debug("Skipping terminal status regression")
		return
	}
	if err := r.store.UpdateVersionStatus(ctx, v.WatchID, v.Sequence, status); err != nil {
		log.Errorf("Updating version status: %v", err)
		return
	}
	if status != store.StatusMerged {
		return
	}

	// Re-read the live current sequence right before deciding; the store's
	// conditional write re-checks once more at write time.
	w, err := r.store.GetWatch(ctx, v.WatchID)
	if err != nil {
		log.Errorf("Re-reading watch before advance: %v", err)
		return
	}
	advanced, err := advance.Apply(ctx, r.store, v.WatchID, w.CurrentSequence, v.Sequence, mergedAt)
	if err != nil {
		log.Errorf("Advancing current version: %v", err)
		return
	}
	if !advanced {
		log.Debug("Current version is already at or past this sequence")
	}
}
