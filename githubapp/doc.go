/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubapp authenticates as a GitHub App and mints per-installation
// access tokens. Tokens are minted fresh for each unit of reconciliation
// rather than cached: they are cheap next to the API calls they gate, and a
// cache would reintroduce cross-request staleness.
//
// A not-found on the token exchange is not transient: it means the
// installation was revoked, and callers are expected to mark the owning
// clusters deleted. InstallationToken surfaces it as ErrInstallationNotFound.
package githubapp
