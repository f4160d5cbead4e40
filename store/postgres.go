/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres implements Store on a Postgres database.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) ListClustersForRepo(ctx context.Context, owner, repo string) ([]Cluster, error) {
	q := `
		SELECT c.id, c.slug, g.owner, g.repo, g.branch, g.path, g.installation_id, g.is_deleted, g.is_404
		FROM cluster c
		JOIN cluster_github g ON g.cluster_id = c.id
		WHERE g.owner = $1 AND g.repo = $2`
	rows, err := p.db.QueryContext(ctx, q, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("listing clusters for %s/%s: %w", owner, repo, err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		var g GitOpsLink
		if err := rows.Scan(&c.ID, &c.Slug, &g.Owner, &g.Repo, &g.Branch, &g.Path, &g.InstallationID, &g.IsDeleted, &g.Is404); err != nil {
			return nil, fmt.Errorf("scanning cluster row: %w", err)
		}
		c.GitOps = &g
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func (p *Postgres) ListWatchesForCluster(ctx context.Context, clusterID string) ([]Watch, error) {
	q := `SELECT id, cluster_id, current_sequence, current_deployed_at FROM watch WHERE cluster_id = $1`
	rows, err := p.db.QueryContext(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("listing watches for cluster %s: %w", clusterID, err)
	}
	defer rows.Close()

	var watches []Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, *w)
	}
	return watches, rows.Err()
}

func (p *Postgres) GetWatch(ctx context.Context, watchID string) (*Watch, error) {
	q := `SELECT id, cluster_id, current_sequence, current_deployed_at FROM watch WHERE id = $1`
	w, err := scanWatch(p.db.QueryRowContext(ctx, q, watchID))
	if err != nil {
		return nil, fmt.Errorf("getting watch %s: %w", watchID, err)
	}
	return w, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWatch(s scanner) (*Watch, error) {
	var w Watch
	var seq sql.NullInt64
	var deployedAt sql.NullTime
	if err := s.Scan(&w.ID, &w.ClusterID, &seq, &deployedAt); err != nil {
		return nil, err
	}
	if seq.Valid {
		w.CurrentSequence = &seq.Int64
	}
	if deployedAt.Valid {
		t := deployedAt.Time
		w.CurrentDeployedAt = &t
	}
	return &w, nil
}

const versionColumns = `watch_id, sequence, pr_number, commit_sha, status, is_404, last_synced_at`

func scanVersion(s scanner) (*Version, error) {
	var v Version
	var sha sql.NullString
	var syncedAt sql.NullTime
	if err := s.Scan(&v.WatchID, &v.Sequence, &v.PullRequestNumber, &sha, &v.Status, &v.Is404, &syncedAt); err != nil {
		return nil, err
	}
	v.CommitSHA = sha.String
	if syncedAt.Valid {
		v.LastSyncedAt = syncedAt.Time
	}
	return &v, nil
}

func (p *Postgres) GetVersionByCommit(ctx context.Context, watchID, sha string) (*Version, error) {
	q := `SELECT ` + versionColumns + ` FROM watch_version WHERE watch_id = $1 AND commit_sha = $2`
	v, err := scanVersion(p.db.QueryRowContext(ctx, q, watchID, sha))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting version by commit %s: %w", sha, err)
	}
	return v, nil
}

func (p *Postgres) ListPendingVersions(ctx context.Context, watchID string) ([]Version, error) {
	q := `
		SELECT ` + versionColumns + ` FROM watch_version
		WHERE watch_id = $1
		  AND sequence > COALESCE((SELECT current_sequence FROM watch WHERE id = $1), -1)
		ORDER BY sequence DESC`
	return p.listVersions(ctx, q, watchID)
}

func (p *Postgres) ListPastVersions(ctx context.Context, watchID string) ([]Version, error) {
	q := `
		SELECT ` + versionColumns + ` FROM watch_version
		WHERE watch_id = $1
		  AND sequence <= COALESCE((SELECT current_sequence FROM watch WHERE id = $1), -1)
		ORDER BY sequence DESC`
	return p.listVersions(ctx, q, watchID)
}

func (p *Postgres) listVersions(ctx context.Context, q, watchID string) ([]Version, error) {
	rows, err := p.db.QueryContext(ctx, q, watchID)
	if err != nil {
		return nil, fmt.Errorf("listing versions for watch %s: %w", watchID, err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func (p *Postgres) UpdateVersionStatus(ctx context.Context, watchID string, sequence int64, status Status) error {
	// The status guard is repeated here so a racing writer cannot revert a
	// terminal status between the reconciler's read and this write.
	q := `
		UPDATE watch_version
		SET status = $3, last_synced_at = now()
		WHERE watch_id = $1 AND sequence = $2
		  AND NOT (status IN ('merged', 'closed') AND $3 IN ('opened', 'pending'))`
	if _, err := p.db.ExecContext(ctx, q, watchID, sequence, string(status)); err != nil {
		return fmt.Errorf("updating status of watch %s sequence %d: %w", watchID, sequence, err)
	}
	return nil
}

func (p *Postgres) SetCurrentVersion(ctx context.Context, watchID string, sequence int64, deployedAt time.Time) (bool, error) {
	// Conditional on the persisted sequence: the advance check and the write
	// are one statement, so a concurrent webhook and poll cannot interleave
	// a regression between them.
	q := `
		UPDATE watch
		SET current_sequence = $2, current_deployed_at = $3
		WHERE id = $1 AND (current_sequence IS NULL OR current_sequence < $2)`
	res, err := p.db.ExecContext(ctx, q, watchID, sequence, deployedAt)
	if err != nil {
		return false, fmt.Errorf("setting current version of watch %s: %w", watchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) ListVersionsPendingReconciliation(ctx context.Context) ([]PendingVersion, error) {
	q := `
		SELECT v.watch_id, v.sequence, v.pr_number, v.commit_sha, v.status, v.is_404, v.last_synced_at,
		       w.cluster_id, g.owner, g.repo, g.installation_id
		FROM watch_version v
		JOIN watch w ON w.id = v.watch_id
		JOIN cluster_github g ON g.cluster_id = w.cluster_id
		WHERE v.status IN ('pending', 'opened')
		  AND v.is_404 = FALSE
		  AND g.is_deleted = FALSE
		  AND g.is_404 = FALSE
		ORDER BY v.watch_id, v.sequence`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing versions pending reconciliation: %w", err)
	}
	defer rows.Close()

	var pending []PendingVersion
	for rows.Next() {
		var pv PendingVersion
		var sha sql.NullString
		var syncedAt sql.NullTime
		if err := rows.Scan(&pv.WatchID, &pv.Sequence, &pv.PullRequestNumber, &sha, &pv.Status, &pv.Is404, &syncedAt,
			&pv.ClusterID, &pv.Owner, &pv.Repo, &pv.InstallationID); err != nil {
			return nil, fmt.Errorf("scanning pending version row: %w", err)
		}
		pv.CommitSHA = sha.String
		if syncedAt.Valid {
			pv.LastSyncedAt = syncedAt.Time
		}
		pending = append(pending, pv)
	}
	return pending, rows.Err()
}

func (p *Postgres) MarkVersion404(ctx context.Context, watchID string, sequence int64) error {
	q := `UPDATE watch_version SET is_404 = TRUE WHERE watch_id = $1 AND sequence = $2`
	if _, err := p.db.ExecContext(ctx, q, watchID, sequence); err != nil {
		return fmt.Errorf("marking watch %s sequence %d 404: %w", watchID, sequence, err)
	}
	return nil
}

func (p *Postgres) BackfillCommitSHA(ctx context.Context, watchID string, sequence int64, sha string) error {
	q := `UPDATE watch_version SET commit_sha = $3 WHERE watch_id = $1 AND sequence = $2 AND (commit_sha IS NULL OR commit_sha = '')`
	if _, err := p.db.ExecContext(ctx, q, watchID, sequence, sha); err != nil {
		return fmt.Errorf("backfilling commit sha on watch %s sequence %d: %w", watchID, sequence, err)
	}
	return nil
}

func (p *Postgres) AttachInstallation(ctx context.Context, accountLogin string, installationID int64) error {
	q := `UPDATE cluster_github SET installation_id = $2, is_deleted = FALSE WHERE owner = $1 AND is_deleted = TRUE`
	if _, err := p.db.ExecContext(ctx, q, accountLogin, installationID); err != nil {
		return fmt.Errorf("attaching installation %d to %s: %w", installationID, accountLogin, err)
	}
	return nil
}

func (p *Postgres) MarkInstallationDeleted(ctx context.Context, installationID int64) (int64, error) {
	q := `UPDATE cluster_github SET is_deleted = TRUE WHERE installation_id = $1 AND is_deleted = FALSE`
	res, err := p.db.ExecContext(ctx, q, installationID)
	if err != nil {
		return 0, fmt.Errorf("marking installation %d deleted: %w", installationID, err)
	}
	return res.RowsAffected()
}

func (p *Postgres) MarkClusterRepo404(ctx context.Context, installationID int64) (int64, error) {
	q := `UPDATE cluster_github SET is_404 = TRUE WHERE installation_id = $1 AND is_404 = FALSE`
	res, err := p.db.ExecContext(ctx, q, installationID)
	if err != nil {
		return 0, fmt.Errorf("marking installation %d repo 404: %w", installationID, err)
	}
	return res.RowsAffected()
}

func (p *Postgres) ClearClusterRepo404(ctx context.Context, owner, repo string) error {
	q := `UPDATE cluster_github SET is_404 = FALSE WHERE owner = $1 AND repo = $2`
	if _, err := p.db.ExecContext(ctx, q, owner, repo); err != nil {
		return fmt.Errorf("clearing repo 404 for %s/%s: %w", owner, repo, err)
	}
	return nil
}

func (p *Postgres) CreateInstallationRecord(ctx context.Context, rec InstallationRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `
		INSERT INTO github_install (installation_id, account_login, account_type, member_count, profile_url, sender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (installation_id) DO UPDATE
		SET account_login = EXCLUDED.account_login,
		    account_type = EXCLUDED.account_type,
		    member_count = EXCLUDED.member_count,
		    profile_url = EXCLUDED.profile_url,
		    sender = EXCLUDED.sender`
	if _, err := p.db.ExecContext(ctx, q, rec.InstallationID, rec.AccountLogin, rec.AccountType, rec.MemberCount, rec.ProfileURL, rec.Sender, createdAt); err != nil {
		return fmt.Errorf("creating installation record %d: %w", rec.InstallationID, err)
	}
	return nil
}

func (p *Postgres) DeleteInstallationRecord(ctx context.Context, installationID int64) error {
	q := `DELETE FROM github_install WHERE installation_id = $1`
	if _, err := p.db.ExecContext(ctx, q, installationID); err != nil {
		return fmt.Errorf("deleting installation record %d: %w", installationID, err)
	}
	return nil
}
