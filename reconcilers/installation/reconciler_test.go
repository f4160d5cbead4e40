/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package installation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v75/github"

	"github.com/replicatedhq/gitops-sync/store"
	"github.com/replicatedhq/gitops-sync/store/storetest"
)

type fakeClients struct {
	gh  *github.Client
	err error
}

func (f *fakeClients) InstallationClient(context.Context, int64) (*github.Client, error) {
	return f.gh, f.err
}

func membersServer(t *testing.T, org string, logins ...string) *fakeClients {
	t.Helper()
	body := "["
	for i, l := range logins {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"login": %q}`, l)
	}
	body += "]"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/orgs/"+org+"/members" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	gh, err := github.NewClient(nil).WithEnterpriseURLs(srv.URL, srv.URL)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	return &fakeClients{gh: gh}
}

func installationEvent(action string, id int64, login, accountType string) *github.InstallationEvent {
	return &github.InstallationEvent{
		Action: github.Ptr(action),
		Installation: &github.Installation{
			ID: github.Ptr(id),
			Account: &github.User{
				Login:   github.Ptr(login),
				Type:    github.Ptr(accountType),
				HTMLURL: github.Ptr("https://github.com/" + login),
			},
		},
		Sender: &github.User{Login: github.Ptr("octocat")},
	}
}

func deletedCluster(id, owner string, installationID int64) store.Cluster {
	return store.Cluster{
		ID: id,
		GitOps: &store.GitOpsLink{
			Owner:          owner,
			Repo:           "gitops",
			InstallationID: installationID,
			IsDeleted:      true,
		},
	}
}

func TestInstallationCreatedOrgFanOut(t *testing.T) {
	s := storetest.New()
	// alice's cluster was orphaned when the previous installation went away.
	s.AddCluster(deletedCluster("c1", "alice", 7))
	s.AddCluster(deletedCluster("c2", "bob", 7))
	s.AddCluster(deletedCluster("c3", "mallory", 7))

	clients := membersServer(t, "acme", "alice", "bob")

	r := New(s, clients)
	ev := installationEvent("created", 99, "acme", "Organization")
	if err := r.InstallationCreated(context.Background(), ev); err != nil {
		t.Fatalf("InstallationCreated() error = %v", err)
	}

	for _, tc := range []struct {
		cluster  string
		attached bool
	}{
		{"c1", true},
		{"c2", true},
		{"c3", false}, // not an org member
	} {
		var g *store.GitOpsLink
		for i := range s.Clusters {
			if s.Clusters[i].ID == tc.cluster {
				g = s.Clusters[i].GitOps
			}
		}
		if tc.attached {
			if g.IsDeleted || g.InstallationID != 99 {
				t.Errorf("cluster %s: installation = %d, deleted = %v; want reattached to 99", tc.cluster, g.InstallationID, g.IsDeleted)
			}
		} else if !g.IsDeleted || g.InstallationID == 99 {
			t.Errorf("cluster %s was attached but its owner is not a member", tc.cluster)
		}
	}

	rec, ok := s.Records[99]
	if !ok {
		t.Fatal("no installation record persisted")
	}
	if rec.AccountLogin != "acme" || rec.AccountType != "Organization" || rec.MemberCount != 2 || rec.Sender != "octocat" {
		t.Errorf("record = %+v, want acme/Organization with 2 members from octocat", rec)
	}
}

func TestInstallationCreatedOrgMemberListingFailure(t *testing.T) {
	s := storetest.New()
	s.AddCluster(deletedCluster("c1", "acme", 7))

	// Member enumeration is best-effort: a transient failure must not lose
	// the account attach or the audit record.
	r := New(s, &fakeClients{err: fmt.Errorf("boom")})
	ev := installationEvent("created", 99, "acme", "Organization")
	if err := r.InstallationCreated(context.Background(), ev); err != nil {
		t.Fatalf("InstallationCreated() error = %v", err)
	}

	g := s.Clusters[0].GitOps
	if g.IsDeleted || g.InstallationID != 99 {
		t.Errorf("cluster not reattached: installation = %d, deleted = %v", g.InstallationID, g.IsDeleted)
	}
	rec, ok := s.Records[99]
	if !ok {
		t.Fatal("no installation record persisted despite member listing failure")
	}
	if rec.MemberCount != 1 {
		t.Errorf("member count = %d, want 1 (account login only)", rec.MemberCount)
	}
}

func TestInstallationCreatedIndividual(t *testing.T) {
	s := storetest.New()
	s.AddCluster(deletedCluster("c1", "alice", 7))

	r := New(s, &fakeClients{err: fmt.Errorf("must not list members for individuals")})
	ev := installationEvent("created", 55, "alice", "User")
	if err := r.InstallationCreated(context.Background(), ev); err != nil {
		t.Fatalf("InstallationCreated() error = %v", err)
	}

	g := s.Clusters[0].GitOps
	if g.IsDeleted || g.InstallationID != 55 {
		t.Errorf("cluster not reattached: installation = %d, deleted = %v", g.InstallationID, g.IsDeleted)
	}
	if s.Records[55].MemberCount != 1 {
		t.Errorf("member count = %d, want 1", s.Records[55].MemberCount)
	}
}

func TestInstallationDeleted(t *testing.T) {
	s := storetest.New()
	s.AddCluster(store.Cluster{ID: "c1", GitOps: &store.GitOpsLink{Owner: "alice", Repo: "gitops", InstallationID: 42}})
	s.AddCluster(store.Cluster{ID: "c2", GitOps: &store.GitOpsLink{Owner: "bob", Repo: "infra", InstallationID: 42}})
	s.AddCluster(store.Cluster{ID: "c3", GitOps: &store.GitOpsLink{Owner: "eve", Repo: "other", InstallationID: 43}})
	s.Records[42] = store.InstallationRecord{InstallationID: 42}
	s.AddVersion(store.Version{WatchID: "w1", Sequence: 1, Status: store.StatusOpened})

	r := New(s, &fakeClients{})
	if err := r.InstallationDeleted(context.Background(), installationEvent("deleted", 42, "acme", "Organization")); err != nil {
		t.Fatalf("InstallationDeleted() error = %v", err)
	}

	if !s.Clusters[0].GitOps.IsDeleted || !s.Clusters[1].GitOps.IsDeleted {
		t.Error("clusters on installation 42 not marked deleted")
	}
	if s.Clusters[2].GitOps.IsDeleted {
		t.Error("cluster on installation 43 must not be touched")
	}
	if _, ok := s.Records[42]; ok {
		t.Error("installation record not removed")
	}
	// No version rows are touched by installation deletion.
	if s.StatusWrites != 0 || s.Version404s != 0 {
		t.Errorf("versions touched: %d status writes, %d 404s", s.StatusWrites, s.Version404s)
	}
}

func TestRepositoriesAdded(t *testing.T) {
	s := storetest.New()
	s.AddCluster(store.Cluster{ID: "c1", GitOps: &store.GitOpsLink{Owner: "acme", Repo: "gitops", InstallationID: 42, Is404: true}})
	s.AddCluster(store.Cluster{ID: "c2", GitOps: &store.GitOpsLink{Owner: "acme", Repo: "infra", InstallationID: 42, Is404: true}})

	ev := &github.InstallationRepositoriesEvent{
		Action:       github.Ptr("added"),
		Installation: &github.Installation{ID: github.Ptr(int64(42))},
		RepositoriesAdded: []*github.Repository{
			{FullName: github.Ptr("acme/gitops")},
		},
	}

	r := New(s, &fakeClients{})
	if err := r.RepositoriesAdded(context.Background(), ev); err != nil {
		t.Fatalf("RepositoriesAdded() error = %v", err)
	}

	if s.Clusters[0].GitOps.Is404 {
		t.Error("acme/gitops linkage still 404 after repository re-added")
	}
	if !s.Clusters[1].GitOps.Is404 {
		t.Error("acme/infra linkage cleared without being in the payload")
	}
}
