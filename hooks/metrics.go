/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package hooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitops_hooks_events_total",
		Help: "Webhook deliveries received, by event type and action.",
	}, []string{"event", "action"})

	eventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitops_hooks_events_ignored_total",
		Help: "Webhook deliveries dropped because the event type is not tracked.",
	}, []string{"event"})

	eventFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitops_hooks_event_failures_total",
		Help: "Webhook deliveries whose reconciliation failed.",
	}, []string{"event"})
)
