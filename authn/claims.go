// Package authn is the minimal bearer-token claims extractor sitting in
// front of the ingest handler and the authorization probe. Identity/role
// extraction from bearer tokens is named an external collaborator in the
// core design; this is a thin, concrete stand-in so the service compiles
// and runs end to end, deliberately limited to decode-plus-expiry-check.
package authn

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader      = errors.New("authn: no authorization header")
	ErrInvalidTokenForm  = errors.New("authn: authorization header is not a bearer token")
	ErrInvalidSignMethod = errors.New("authn: unexpected signing method")
)

// PrincipalClaims identifies the caller. Subject is the principal id used
// by the Authorization Probe's store lookup.
type PrincipalClaims struct {
	jwt.RegisteredClaims
}

// ExtractBearer reads the Authorization header, verifies the token's
// signature with secret, and returns its claims. Expiry is enforced by the
// jwt library's own parsing (jwt.RegisteredClaims implements Validate).
func ExtractBearer(r *http.Request, secret []byte) (*PrincipalClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoAuthHeader
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrInvalidTokenForm
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := &PrincipalClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignMethod, t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authn: token parse failed: %w", err)
	}

	return claims, nil
}
