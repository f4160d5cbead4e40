/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the scheduled reconciliation sweep: the batch
// channel of the GitOps sync subsystem. It is invoked by an external
// scheduler, runs one sweep, and exits.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/lib/pq"
	"github.com/sethvargo/go-envconfig"

	"github.com/replicatedhq/gitops-sync/githubapp"
	"github.com/replicatedhq/gitops-sync/reconcilers/poll"
	"github.com/replicatedhq/gitops-sync/store"
)

type config struct {
	AppID          int64  `env:"GITHUB_APP_ID,required"`
	PrivateKey     string `env:"GITHUB_PRIVATE_KEY"`
	PrivateKeyFile string `env:"GITHUB_PRIVATE_KEY_FILE"`
	APIBaseURL     string `env:"GITHUB_API_URL"`

	DatabaseURI string        `env:"DATABASE_URI,required"`
	PollDelay   time.Duration `env:"POLL_DELAY,default=1s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log := clog.FromContext(ctx)

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("Processing configuration: %v", err)
	}

	key, err := githubapp.LoadPrivateKey(cfg.PrivateKey, cfg.PrivateKeyFile)
	if err != nil {
		log.Fatalf("Loading app private key: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("Opening database: %v", err)
	}
	defer db.Close()
	st := store.NewPostgres(db)
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("Pinging database: %v", err)
	}

	var opts []githubapp.Option
	if cfg.APIBaseURL != "" {
		opts = append(opts, githubapp.WithBaseURL(cfg.APIBaseURL))
	}
	tokens := githubapp.NewTokenProvider(cfg.AppID, key, opts...)

	job := poll.New(st, tokens, poll.WithDelay(cfg.PollDelay))
	summary, err := job.Run(ctx)
	if err != nil {
		log.Fatalf("Running sweep: %v", err)
	}

	// Individual version failures were already logged and absorbed; a sweep
	// that reached its summary exits clean.
	log.With(
		"examined", summary.Examined,
		"status_changes", summary.StatusChanges,
		"versions_404", summary.Versions404,
		"clusters_404", summary.Clusters404,
		"installations_deleted", summary.InstallationsDeleted,
		"sha_backfills", summary.CommitSHABackfills,
	).Info("Sweep finished")
}
