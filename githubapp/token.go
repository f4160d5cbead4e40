/*
Copyright 2026 Replicated, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubapp

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// ErrInstallationNotFound is returned by InstallationToken when the remote
// host no longer knows the installation. It is terminal, not transient: the
// user uninstalled the app, and the owning clusters should be marked deleted.
var ErrInstallationNotFound = errors.New("github app installation not found")

// assertionTTL is the validity window of the signed app assertion. The
// assertion only needs to survive the token exchange itself.
const assertionTTL = 60 * time.Second

// TokenProvider mints installation access tokens for a GitHub App.
type TokenProvider struct {
	appID int64
	key   *rsa.PrivateKey

	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures the TokenProvider.
type Option func(*TokenProvider)

// WithBaseURL points API calls at a GitHub Enterprise (or test) endpoint
// instead of api.github.com.
func WithBaseURL(u string) Option {
	return func(p *TokenProvider) { p.baseURL = u }
}

// WithHTTPClient overrides the HTTP client used beneath the oauth2 transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *TokenProvider) { p.httpClient = c }
}

// NewTokenProvider constructs a provider for the app identified by appID,
// signing assertions with key.
func NewTokenProvider(appID int64, key *rsa.PrivateKey, opts ...Option) *TokenProvider {
	p := &TokenProvider{
		appID: appID,
		key:   key,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// assertion signs a short-lived JWT identifying the app itself.
func (p *TokenProvider) assertion() (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(p.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("signing app assertion: %w", err)
	}
	return signed, nil
}

// InstallationToken exchanges the app assertion for an access token scoped to
// one installation. A remote 404 on the exchange is surfaced as
// ErrInstallationNotFound; every other failure propagates unchanged.
func (p *TokenProvider) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	assertion, err := p.assertion()
	if err != nil {
		return "", err
	}

	gh, err := p.client(ctx, assertion)
	if err != nil {
		return "", err
	}
	tok, _, err := gh.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		if IsNotFound(err) {
			return "", fmt.Errorf("installation %d: %w", installationID, ErrInstallationNotFound)
		}
		return "", fmt.Errorf("creating installation token for %d: %w", installationID, err)
	}
	return tok.GetToken(), nil
}

// InstallationClient returns a GitHub client authenticated with a freshly
// minted token for the installation. Errors from the underlying token
// exchange, including ErrInstallationNotFound, pass through.
func (p *TokenProvider) InstallationClient(ctx context.Context, installationID int64) (*github.Client, error) {
	token, err := p.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return p.client(ctx, token)
}

// client builds a go-github client whose requests carry bearer as the
// Authorization token. The same shape serves both halves of the exchange:
// the signed assertion is the bearer for the app-scoped call, and the
// installation token is the bearer for everything after.
func (p *TokenProvider) client(ctx context.Context, bearer string) (*github.Client, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer}))
	gh := github.NewClient(hc)
	if p.baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(p.baseURL, p.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring API base URL: %w", err)
		}
	}
	return gh, nil
}

// IsNotFound reports whether err is a GitHub API response with status 404.
// Reconcilers use it to tell a vanished remote resource apart from transient
// failures; which flag to flip depends on which call produced the error.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
