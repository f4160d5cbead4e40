/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package hooks

import (
	"context"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// InstallationReconciler handles the installation lifecycle events.
type InstallationReconciler interface {
	InstallationCreated(ctx context.Context, ev *github.InstallationEvent) error
	InstallationDeleted(ctx context.Context, ev *github.InstallationEvent) error
	RepositoriesAdded(ctx context.Context, ev *github.InstallationRepositoriesEvent) error
}

// PullRequestReconciler handles pull_request events.
type PullRequestReconciler interface {
	Reconcile(ctx context.Context, ev *github.PullRequestEvent) error
}

// Handler validates webhook deliveries and routes them by event type.
type Handler struct {
	secret        []byte
	installations InstallationReconciler
	pullRequests  PullRequestReconciler
}

// New constructs a Handler. The secret is the webhook HMAC secret shared
// with the remote host.
func New(secret string, installations InstallationReconciler, pullRequests PullRequestReconciler) *Handler {
	return &Handler{
		secret:        []byte(secret),
		installations: installations,
		pullRequests:  pullRequests,
	}
}

// ServeHTTP validates and dispatches one delivery. Once the signature checks
// out the response is always 2xx: reconciler failures are logged and absorbed
// rather than surfaced, because a remote redelivery would replay into the
// same failure and the poll sweep repairs anything missed here.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Warnf("Rejecting delivery with bad signature: %v", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		log.With("event", eventType).Warnf("Rejecting unparseable delivery: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	log = log.With("event", eventType, "delivery", github.DeliveryID(r))
	ctx = clog.WithLogger(ctx, log)

	if err := h.dispatch(ctx, eventType, event); err != nil {
		eventFailures.WithLabelValues(eventType).Inc()
		log.Errorf("Reconciling delivery: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) dispatch(ctx context.Context, eventType string, event any) error {
	log := clog.FromContext(ctx)

	switch ev := event.(type) {
	case *github.PullRequestEvent:
		eventsReceived.WithLabelValues(eventType, ev.GetAction()).Inc()
		return h.pullRequests.Reconcile(ctx, ev)

	case *github.InstallationEvent:
		eventsReceived.WithLabelValues(eventType, ev.GetAction()).Inc()
		switch ev.GetAction() {
		case "created":
			return h.installations.InstallationCreated(ctx, ev)
		case "deleted":
			return h.installations.InstallationDeleted(ctx, ev)
		default:
			log.With("action", ev.GetAction()).Debug("Ignoring installation action")
			return nil
		}

	case *github.InstallationRepositoriesEvent:
		eventsReceived.WithLabelValues(eventType, ev.GetAction()).Inc()
		if ev.GetAction() != "added" {
			// "removed" is covered by the poll sweep's 404 discovery.
			log.With("action", ev.GetAction()).Debug("Ignoring installation_repositories action")
			return nil
		}
		return h.installations.RepositoriesAdded(ctx, ev)

	default:
		eventsIgnored.WithLabelValues(eventType).Inc()
		log.Debug("Ignoring event type")
		return nil
	}
}
