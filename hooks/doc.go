/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package hooks is the thin front door for webhook deliveries: HMAC
// validation, payload typing, and routing by event type to the installation
// and pull request reconcilers. It carries no reconciliation logic of its
// own.
package hooks
