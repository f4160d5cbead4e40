/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the webhook receiver: the real-time channel of the
// GitOps sync subsystem.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"

	"github.com/replicatedhq/gitops-sync/githubapp"
	"github.com/replicatedhq/gitops-sync/hooks"
	"github.com/replicatedhq/gitops-sync/reconcilers/installation"
	"github.com/replicatedhq/gitops-sync/reconcilers/pullrequest"
	"github.com/replicatedhq/gitops-sync/store"
)

type config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	WebhookSecret string `env:"GITHUB_WEBHOOK_SECRET,required"`

	AppID          int64  `env:"GITHUB_APP_ID,required"`
	PrivateKey     string `env:"GITHUB_PRIVATE_KEY"`
	PrivateKeyFile string `env:"GITHUB_PRIVATE_KEY_FILE"`
	APIBaseURL     string `env:"GITHUB_API_URL"`

	DatabaseURI string `env:"DATABASE_URI,required"`
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

	handler := hooks.New(cfg.WebhookSecret,
		installation.New(st, tokens),
		pullrequest.New(st, tokens))

	go serveMetrics(ctx, cfg.MetricsPort)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodPost, "/api/v1/hooks/github", handler)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Shutting down: %v", err)
		}
	}()

	log.With("port", cfg.Port).Info("Listening for webhook deliveries")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Serving: %v", err)
	}
}

func serveMetrics(ctx context.Context, port int) {
	log := clog.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Serving metrics: %v", err)
	}
}
