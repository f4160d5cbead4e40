/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package installation

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/replicatedhq/gitops-sync/store"
)

// ClientProvider mints authenticated GitHub clients per installation.
type ClientProvider interface {
	InstallationClient(ctx context.Context, installationID int64) (*github.Client, error)
}

// Reconciler maintains the mapping between clusters and app installations.
type Reconciler struct {
	store   store.Store
	clients ClientProvider
}

// New constructs a Reconciler.
func New(s store.Store, clients ClientProvider) *Reconciler {
	return &Reconciler{store: s, clients: clients}
}

// InstallationCreated attaches the new installation to clusters previously
// linked to the installed account. For an organization the attach fans out
// to every member; the member list is collected first and the updates run
// against the store afterwards, so one bad row cannot poison the remote
// enumeration. Member enumeration is best-effort: a failure falls back to
// the account login alone rather than losing the attach and the audit
// record. The audit record is persisted either way.
func (r *Reconciler) InstallationCreated(ctx context.Context, ev *github.InstallationEvent) error {
	inst := ev.GetInstallation()
	account := inst.GetAccount()
	log := clog.FromContext(ctx).With("installation", inst.GetID(), "account", account.GetLogin())

	logins := []string{account.GetLogin()}
	if strings.EqualFold(account.GetType(), "Organization") {
		members, err := r.orgMembers(ctx, inst.GetID(), account.GetLogin())
		if err != nil {
			log.Errorf("Listing members of %s: %v", account.GetLogin(), err)
		} else {
			logins = members
		}
	}

	for _, login := range logins {
		if err := r.store.AttachInstallation(ctx, login, inst.GetID()); err != nil {
			log.With("member", login).Errorf("Attaching installation: %v", err)
		}
	}

	rec := store.InstallationRecord{
		InstallationID: inst.GetID(),
		AccountLogin:   account.GetLogin(),
		AccountType:    account.GetType(),
		MemberCount:    len(logins),
		ProfileURL:     account.GetHTMLURL(),
		Sender:         ev.GetSender().GetLogin(),
	}
	if err := r.store.CreateInstallationRecord(ctx, rec); err != nil {
		return fmt.Errorf("recording installation %d: %w", inst.GetID(), err)
	}

	log.With("members", len(logins)).Info("Installation created")
	return nil
}

// InstallationDeleted marks every cluster on the installation deleted and
// drops the audit record. The clusters themselves survive; the flag only
// stops reconciliation until the app is reinstalled.
func (r *Reconciler) InstallationDeleted(ctx context.Context, ev *github.InstallationEvent) error {
	id := ev.GetInstallation().GetID()
	log := clog.FromContext(ctx).With("installation", id)

	n, err := r.store.MarkInstallationDeleted(ctx, id)
	if err != nil {
		return fmt.Errorf("marking installation %d deleted: %w", id, err)
	}
	if err := r.store.DeleteInstallationRecord(ctx, id); err != nil {
		return fmt.Errorf("deleting installation record %d: %w", id, err)
	}

	log.With("clusters", n).Info("Installation deleted")
	return nil
}

// RepositoriesAdded clears the repository-not-found flag for each repository
// the installation regained access to. Removal is deliberately not handled
// here: the poll sweep rediscovers missing repositories on its own.
func (r *Reconciler) RepositoriesAdded(ctx context.Context, ev *github.InstallationRepositoriesEvent) error {
	log := clog.FromContext(ctx).With("installation", ev.GetInstallation().GetID())

	for _, repo := range ev.RepositoriesAdded {
		owner, name, ok := splitFullName(repo.GetFullName())
		if !ok {
			log.With("repo", repo.GetFullName()).Warn("Skipping repository with unparseable name")
			continue
		}
		if err := r.store.ClearClusterRepo404(ctx, owner, name); err != nil {
			log.With("repo", repo.GetFullName()).Errorf("Clearing repo 404: %v", err)
		}
	}
	return nil
}

// orgMembers enumerates every member of the organization using a token
// minted for the new installation.
func (r *Reconciler) orgMembers(ctx context.Context, installationID int64, org string) ([]string, error) {
	gh, err := r.clients.InstallationClient(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("minting installation client: %w", err)
	}

	var logins []string
	opts := &github.ListMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		members, resp, err := gh.Organizations.ListMembers(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing organization members: %w", err)
		}
		for _, m := range members {
			logins = append(logins, m.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return logins, nil
}

func splitFullName(full string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(full, "/")
	return owner, name, ok && owner != "" && name != ""
}
