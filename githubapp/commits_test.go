/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
)

func commitJSON(sha string, date time.Time) string {
	if date.IsZero() {
		return fmt.Sprintf(`{"sha": %q, "commit": {}}`, sha)
	}
	return fmt.Sprintf(`{"sha": %q, "commit": {"committer": {"date": %q}}}`, sha, date.Format(time.RFC3339))
}

func TestListPullRequestCommitsOrdering(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	// Out of order on the wire, with one undated commit mixed in.
	body := "[" + commitJSON("ccc", t3) + "," + commitJSON("zzz", time.Time{}) + "," +
		commitJSON("aaa", t1) + "," + commitJSON("bbb", t2) + "]"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/acme/gitops/pulls/7/commits" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	gh, err := github.NewClient(nil).WithEnterpriseURLs(srv.URL, srv.URL)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	commits, err := ListPullRequestCommits(context.Background(), gh, "acme", "gitops", 7)
	if err != nil {
		t.Fatalf("ListPullRequestCommits() error = %v", err)
	}

	var got []string
	for _, c := range commits {
		got = append(got, c.GetSHA())
	}
	want := []string{"aaa", "bbb", "ccc", "zzz"}
	if len(got) != len(want) {
		t.Fatalf("got %d commits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commit[%d] = %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
}
