/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestSetCurrentVersionAdvances(t *testing.T) {
	p, mock := newMock(t)
	deployedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE watch`).
		WithArgs("w1", int64(8), deployedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	advanced, err := p.SetCurrentVersion(context.Background(), "w1", 8, deployedAt)
	require.NoError(t, err)
	require.True(t, advanced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCurrentVersionRejectsStaleSequence(t *testing.T) {
	// The WHERE clause filters out regressions; zero rows affected means the
	// persisted sequence was already at or past the candidate.
	p, mock := newMock(t)

	mock.ExpectExec(`UPDATE watch`).
		WithArgs("w1", int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err := p.SetCurrentVersion(context.Background(), "w1", 3, time.Now())
	require.NoError(t, err)
	require.False(t, advanced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVersionByCommitMiss(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM watch_version`).
		WithArgs("w1", "deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"watch_id", "sequence", "pr_number", "commit_sha", "status", "is_404", "last_synced_at"}))

	v, err := p.GetVersionByCommit(context.Background(), "w1", "deadbeef")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestGetVersionByCommitHit(t *testing.T) {
	p, mock := newMock(t)
	syncedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM watch_version`).
		WithArgs("w1", "abc123").
		WillReturnRows(sqlmock.NewRows([]string{"watch_id", "sequence", "pr_number", "commit_sha", "status", "is_404", "last_synced_at"}).
			AddRow("w1", int64(4), 7, "abc123", "opened", false, syncedAt))

	v, err := p.GetVersionByCommit(context.Background(), "w1", "abc123")
	require.NoError(t, err)

	want := &Version{
		WatchID:           "w1",
		Sequence:          4,
		PullRequestNumber: 7,
		CommitSHA:         "abc123",
		Status:            StatusOpened,
		LastSyncedAt:      syncedAt,
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("version mismatch (-want +got):\n%s", diff)
	}
}

func TestListVersionsPendingReconciliation(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(`FROM watch_version v`).
		WillReturnRows(sqlmock.NewRows([]string{
			"watch_id", "sequence", "pr_number", "commit_sha", "status", "is_404", "last_synced_at",
			"cluster_id", "owner", "repo", "installation_id",
		}).
			AddRow("w1", int64(1), 7, nil, "pending", false, nil, "c1", "acme", "gitops", int64(42)).
			AddRow("w1", int64(2), 8, "abc", "opened", false, nil, "c1", "acme", "gitops", int64(42)))

	pending, err := p.ListVersionsPendingReconciliation(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// A NULL commit sha scans to the empty string, the legacy-row marker.
	require.Empty(t, pending[0].CommitSHA)
	require.Equal(t, "acme", pending[0].Owner)
	require.Equal(t, int64(42), pending[0].InstallationID)
	require.Equal(t, StatusOpened, pending[1].Status)
}

func TestUpdateVersionStatusCarriesGuard(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(`UPDATE watch_version`).
		WithArgs("w1", int64(2), "merged").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.UpdateVersionStatus(context.Background(), "w1", 2, StatusMerged))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInstallationDeletedReturnsCount(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(`UPDATE cluster_github SET is_deleted`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.MarkInstallationDeleted(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestListClustersForRepo(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(`FROM cluster c`).
		WithArgs("acme", "gitops").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "owner", "repo", "branch", "path", "installation_id", "is_deleted", "is_404"}).
			AddRow("c1", "prod", "acme", "gitops", "main", "clusters/prod", int64(42), false, false))

	clusters, err := p.ListClustersForRepo(context.Background(), "acme", "gitops")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.NotNil(t, clusters[0].GitOps)
	require.Equal(t, "main", clusters[0].GitOps.Branch)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusOpened, true},
		{StatusOpened, StatusMerged, true},
		{StatusOpened, StatusClosed, true},
		{StatusMerged, StatusOpened, false},
		{StatusClosed, StatusPending, false},
		{StatusMerged, StatusMerged, true},
		{StatusClosed, StatusMerged, true},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}
