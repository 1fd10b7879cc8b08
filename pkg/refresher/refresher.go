// Package refresher implements the token-refresh predicate and simulated
// refresh routine the admission pipeline calls before dispatch.
package refresher

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/vault"
)

// refreshBuffer is hard-coded regardless of the TOKEN_REFRESH_BUFFER_SECS
// configuration item, which is exposed but not consulted here. See
// DESIGN.md's Open Question writeup.
const refreshBuffer = 6 * time.Hour

// NeedsRefresh reports whether cred's ExpiresAt is set and within
// refreshBuffer of now.
func NeedsRefresh(cred vault.StoredCredential) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(refreshBuffer).After(*cred.ExpiresAt)
}

// IsExpired reports whether cred's ExpiresAt has already passed.
func IsExpired(cred vault.StoredCredential) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*cred.ExpiresAt)
}

// Refresh simulates an upstream OAuth2 token exchange: it returns nil, false
// when ctx is already canceled or cred has no refresh token, otherwise a
// clone whose ExpiresAt is one hour from now.
// A production implementation would dial out using ctx for cancellation;
// this simulation accepts ctx for the same reason but never blocks on it.
func Refresh(ctx context.Context, cred vault.StoredCredential) (*vault.StoredCredential, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	if cred.RefreshToken == nil {
		return nil, false
	}

	exchanged := oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: *cred.RefreshToken,
		Expiry:       time.Now().Add(time.Hour),
	}

	refreshed := cred
	refreshed.AccessToken = exchanged.AccessToken
	expiresAt := exchanged.Expiry
	refreshed.ExpiresAt = &expiresAt

	return &refreshed, true
}
