/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubapp

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LoadPrivateKey resolves the app's RSA signing key from either inline PEM
// contents or a file path, whichever is set. Contents win when both are set.
// Deployment tooling is inconsistent about trailing newlines in injected
// secrets, so the PEM is normalized to end with exactly one.
func LoadPrivateKey(contents, path string) (*rsa.PrivateKey, error) {
	switch {
	case contents != "":
		return parsePrivateKey([]byte(contents))
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading private key file: %w", err)
		}
		return parsePrivateKey(data)
	default:
		return nil, errors.New("no private key configured")
	}
}

func parsePrivateKey(pem []byte) (*rsa.PrivateKey, error) {
	normalized := strings.TrimRight(string(pem), "\n") + "\n"
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalized))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}
