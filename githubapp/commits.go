/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubapp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/go-github/v75/github"
)

// ListPullRequestCommits fetches every commit on the pull request and returns
// them ordered by commit timestamp, oldest first. Commits with no timestamp
// sort after all dated ones, in the order the API returned them.
func ListPullRequestCommits(ctx context.Context, gh *github.Client, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	var all []*github.RepositoryCommit
	opts := &github.ListOptions{PerPage: 100}
	for {
		commits, resp, err := gh.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s/%s#%d: %w", owner, repo, number, err)
		}
		all = append(all, commits...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.SliceStable(all, func(i, j int) bool {
		ti, iOK := commitTime(all[i])
		tj, jOK := commitTime(all[j])
		switch {
		case iOK && jOK:
			return ti.Before(tj)
		case iOK:
			return true
		default:
			return false
		}
	})
	return all, nil
}

func commitTime(c *github.RepositoryCommit) (time.Time, bool) {
	t := c.GetCommit().GetCommitter().GetDate().Time
	return t, !t.IsZero()
}
