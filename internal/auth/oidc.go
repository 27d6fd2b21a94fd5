// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/logging"
)

// OIDCAuthenticator verifies ID tokens against the provider's published keys.
type OIDCAuthenticator struct {
	verifier *rp.IDTokenVerifier
	issuer   string

	// providerDown is set while the last request to the provider failed.
	providerDown *atomic.Bool
}

// providerTransport records whether the provider answered the last request.
// zitadel flattens JWKS fetch errors into ErrSignatureInvalid, so this is
// how a key fetch failure is told apart from a forged token.
type providerTransport struct {
	base http.RoundTripper
	down *atomic.Bool
}

func (t *providerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	t.down.Store(err != nil || resp.StatusCode >= http.StatusInternalServerError)
	return resp, err
}

// NewOIDCAuthenticator runs discovery against cfg.IssuerURL.
func NewOIDCAuthenticator(ctx context.Context, cfg *config.OIDCConfig, client *http.Client) (*OIDCAuthenticator, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC_ISSUER_URL and OIDC_CLIENT_ID are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	down := new(atomic.Bool)
	tracked := *client
	base := tracked.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	tracked.Transport = &providerTransport{base: base, down: down}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile}
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.IssuerURL, cfg.ClientID, cfg.ClientSecret,
		cfg.RedirectURL, scopes, rp.WithHTTPClient(&tracked))
	if err != nil {
		return nil, fmt.Errorf("%w: oidc discovery: %v", ErrAuthenticatorUnavailable, err)
	}

	return &OIDCAuthenticator{
		verifier:     relyingParty.IDTokenVerifier(),
		issuer:       cfg.IssuerURL,
		providerDown: down,
	}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Subject, error) {
	tokenStr := identityToken(r, AccessTokenCookie)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}
	// HS256 access tokens belong to the JWT authenticator.
	if !looksAsymmetric(tokenStr) {
		return nil, ErrNoCredentials
	}

	if a.verifier == nil {
		return nil, fmt.Errorf("%w: verifier not initialized", ErrAuthenticatorUnavailable)
	}
	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, tokenStr, a.verifier)
	if err != nil {
		return nil, mapVerificationError(err, a.providerDown != nil && a.providerDown.Load())
	}

	s := &Subject{
		ID:         claims.Subject,
		Email:      claims.Email,
		AuthMethod: MethodOIDC,
		ExpiresAt:  claims.GetExpiration(),
	}
	logging.Debug().Str("subject", s.ID).Str("issuer", claims.Issuer).Msg("OIDC authentication successful")
	return s, nil
}

func (a *OIDCAuthenticator) Name() string { return string(MethodOIDC) }

func (a *OIDCAuthenticator) Priority() int { return 10 }

func (a *OIDCAuthenticator) Issuer() string { return a.issuer }

var _ Authenticator = (*OIDCAuthenticator)(nil)

// looksAsymmetric peeks at the JOSE header without verifying it.
func looksAsymmetric(token string) bool {
	header, _, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	alg, err := headerAlg(header)
	if err != nil {
		return false
	}
	return alg != "" && !strings.HasPrefix(alg, "HS") && alg != "none"
}

// mapVerificationError maps zitadel verifier errors onto auth sentinels.
// A signature failure while the provider is unreachable means the keys
// could not be fetched.
func mapVerificationError(err error, providerDown bool) error {
	switch {
	case errors.Is(err, oidc.ErrExpired):
		return ErrExpiredCredentials
	case errors.Is(err, oidc.ErrIssuerInvalid):
		logging.Warn().Err(err).Msg("Token issuer mismatch")
		return fmt.Errorf("%w: issuer mismatch", ErrInvalidCredentials)
	case errors.Is(err, oidc.ErrAudience), errors.Is(err, oidc.ErrAzpMissing), errors.Is(err, oidc.ErrAzpInvalid):
		logging.Warn().Err(err).Msg("Token audience mismatch")
		return fmt.Errorf("%w: audience mismatch", ErrInvalidCredentials)
	case errors.Is(err, oidc.ErrSignatureInvalid) && providerDown,
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	default:
		logging.Debug().Err(err).Msg("Token verification failed")
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
}
