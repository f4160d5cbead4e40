/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package installation handles app installation lifecycle events: attaching
// new installations to clusters by account identity (with organization
// member fan-out), soft-deleting cluster linkages when an installation is
// revoked, and restoring repository access flags when repositories are
// re-added.
package installation
