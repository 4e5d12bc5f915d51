// Package auth implements the bearer-token-matches-admin-secret check the
// HTTP server uses to authenticate every route except /health. Multi-tenant authorization
// beyond this single shared secret is out of scope.
package auth

import "github.com/ctxconfig/cac/internal/apperr"

// AdminVerifier holds the Argon2id hash of the configured admin secret and
// checks bearer tokens against it in constant time.
type AdminVerifier struct {
	hashed string
}

// NewAdminVerifier hashes secret once at startup; Verify never re-hashes
// the configured secret, only the presented token.
func NewAdminVerifier(secret string) (*AdminVerifier, error) {
	hashed, err := HashAdminSecret(secret)
	if err != nil {
		return nil, err
	}
	return &AdminVerifier{hashed: hashed}, nil
}

// Verify checks token against the configured admin secret. An empty token
// still runs DummyVerify so that the missing-token and wrong-token paths
// take the same amount of time.
func (v *AdminVerifier) Verify(token string) error {
	if token == "" {
		DummyVerify()
		return apperr.Unauthorized("missing bearer token")
	}
	ok, err := VerifyAdminSecret(token, v.hashed)
	if err != nil || !ok {
		return apperr.Unauthorized("invalid bearer token")
	}
	return nil
}
