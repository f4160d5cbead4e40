/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package storetest provides an in-memory Store for reconciler tests. It
// mirrors the Postgres implementation's semantics, including the conditional
// current-version write and the terminal-status guard, and counts writes so
// tests can assert idempotency.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/replicatedhq/gitops-sync/store"
)

// Fake is an in-memory store.Store.
type Fake struct {
	mu sync.Mutex

	Clusters []store.Cluster
	Watches  map[string]*store.Watch
	Versions []*store.Version
	Records  map[int64]store.InstallationRecord

	// Write counters, for idempotency assertions.
	StatusWrites   int
	AdvanceWrites  int
	Version404s    int
	Backfills      int
	AttachedLogins []string
}

var _ store.Store = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Watches: map[string]*store.Watch{},
		Records: map[int64]store.InstallationRecord{},
	}
}

// AddCluster registers a cluster.
func (f *Fake) AddCluster(c store.Cluster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clusters = append(f.Clusters, c)
}

// AddWatch registers a watch.
func (f *Fake) AddWatch(w store.Watch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Watches[w.ID] = &w
}

// AddVersion registers a version.
func (f *Fake) AddVersion(v store.Version) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Versions = append(f.Versions, &v)
}

func (f *Fake) ListClustersForRepo(_ context.Context, owner, repo string) ([]store.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Cluster
	for _, c := range f.Clusters {
		if c.GitOps != nil && c.GitOps.Owner == owner && c.GitOps.Repo == repo {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) ListWatchesForCluster(_ context.Context, clusterID string) ([]store.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Watch
	for _, w := range f.Watches {
		if w.ClusterID == clusterID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetWatch(_ context.Context, watchID string) (*store.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.Watches[watchID]
	if !ok {
		return nil, errNotFound(watchID)
	}
	cp := *w
	if w.CurrentSequence != nil {
		seq := *w.CurrentSequence
		cp.CurrentSequence = &seq
	}
	return &cp, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "not found: " + string(e) }

func (f *Fake) GetVersionByCommit(_ context.Context, watchID, sha string) (*store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.WatchID == watchID && sha != "" && v.CommitSHA == sha {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) ListPendingVersions(_ context.Context, watchID string) ([]store.Version, error) {
	return f.listRelative(watchID, true), nil
}

func (f *Fake) ListPastVersions(_ context.Context, watchID string) ([]store.Version, error) {
	return f.listRelative(watchID, false), nil
}

func (f *Fake) listRelative(watchID string, pending bool) []store.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := int64(-1)
	if w, ok := f.Watches[watchID]; ok && w.CurrentSequence != nil {
		current = *w.CurrentSequence
	}
	var out []store.Version
	for _, v := range f.Versions {
		if v.WatchID != watchID {
			continue
		}
		if pending == (v.Sequence > current) {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out
}

func (f *Fake) UpdateVersionStatus(_ context.Context, watchID string, sequence int64, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.WatchID == watchID && v.Sequence == sequence {
			if !v.Status.CanTransition(status) {
				return nil
			}
			v.Status = status
			v.LastSyncedAt = time.Now()
			f.StatusWrites++
			return nil
		}
	}
	return errNotFound(watchID)
}

func (f *Fake) SetCurrentVersion(_ context.Context, watchID string, sequence int64, deployedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.Watches[watchID]
	if !ok {
		return false, errNotFound(watchID)
	}
	if w.CurrentSequence != nil && *w.CurrentSequence >= sequence {
		return false, nil
	}
	w.CurrentSequence = &sequence
	w.CurrentDeployedAt = &deployedAt
	f.AdvanceWrites++
	return true, nil
}

func (f *Fake) ListVersionsPendingReconciliation(_ context.Context) ([]store.PendingVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.PendingVersion
	for _, v := range f.Versions {
		if v.Status.Terminal() || v.Is404 {
			continue
		}
		w, ok := f.Watches[v.WatchID]
		if !ok {
			continue
		}
		for _, c := range f.Clusters {
			if c.ID != w.ClusterID || c.GitOps == nil || c.GitOps.IsDeleted || c.GitOps.Is404 {
				continue
			}
			out = append(out, store.PendingVersion{
				Version:        *v,
				ClusterID:      c.ID,
				Owner:          c.GitOps.Owner,
				Repo:           c.GitOps.Repo,
				InstallationID: c.GitOps.InstallationID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WatchID != out[j].WatchID {
			return out[i].WatchID < out[j].WatchID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (f *Fake) MarkVersion404(_ context.Context, watchID string, sequence int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.WatchID == watchID && v.Sequence == sequence && !v.Is404 {
			v.Is404 = true
			f.Version404s++
		}
	}
	return nil
}

func (f *Fake) BackfillCommitSHA(_ context.Context, watchID string, sequence int64, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.WatchID == watchID && v.Sequence == sequence && v.CommitSHA == "" {
			v.CommitSHA = sha
			f.Backfills++
		}
	}
	return nil
}

func (f *Fake) AttachInstallation(_ context.Context, accountLogin string, installationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AttachedLogins = append(f.AttachedLogins, accountLogin)
	for i := range f.Clusters {
		g := f.Clusters[i].GitOps
		if g != nil && g.Owner == accountLogin && g.IsDeleted {
			g.InstallationID = installationID
			g.IsDeleted = false
		}
	}
	return nil
}

func (f *Fake) MarkInstallationDeleted(_ context.Context, installationID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.Clusters {
		g := f.Clusters[i].GitOps
		if g != nil && g.InstallationID == installationID && !g.IsDeleted {
			g.IsDeleted = true
			n++
		}
	}
	return n, nil
}

func (f *Fake) MarkClusterRepo404(_ context.Context, installationID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.Clusters {
		g := f.Clusters[i].GitOps
		if g != nil && g.InstallationID == installationID && !g.Is404 {
			g.Is404 = true
			n++
		}
	}
	return n, nil
}

func (f *Fake) ClearClusterRepo404(_ context.Context, owner, repo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Clusters {
		g := f.Clusters[i].GitOps
		if g != nil && g.Owner == owner && g.Repo == repo {
			g.Is404 = false
		}
	}
	return nil
}

func (f *Fake) CreateInstallationRecord(_ context.Context, rec store.InstallationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records[rec.InstallationID] = rec
	return nil
}

func (f *Fake) DeleteInstallationRecord(_ context.Context, installationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Records, installationID)
	return nil
}

// Watch returns the live watch row, for assertions.
func (f *Fake) Watch(watchID string) *store.Watch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Watches[watchID]
}

// Version returns the live version row, for assertions.
func (f *Fake) Version(watchID string, sequence int64) *store.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.WatchID == watchID && v.Sequence == sequence {
			return v
		}
	}
	return nil
}
