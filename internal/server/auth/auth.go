// Package auth guards the operator status API with a bearer token.
//
// The configuration stores only a bcrypt hash of the token; the plain
// token is printed once at generation time and never persisted.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Guard verifies operator requests against a configured token hash.
// An empty hash disables the guarded endpoints entirely.
type Guard struct {
	tokenHash string
}

// NewGuard creates a guard for the given bcrypt token hash.
func NewGuard(tokenHash string) *Guard {
	return &Guard{tokenHash: tokenHash}
}

// Enabled reports whether a token hash is configured.
func (g *Guard) Enabled() bool {
	return g.tokenHash != ""
}

// Authorize checks the request's Bearer token against the configured hash.
func (g *Guard) Authorize(r *http.Request) bool {
	if !g.Enabled() {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(g.tokenHash), []byte(token)) == nil
}

// GenerateToken creates a random operator token and its bcrypt hash. The
// hash goes into the configuration; the token is handed to the operator.
func GenerateToken() (token, hash string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = hex.EncodeToString(bytes)

	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash token: %w", err)
	}
	return token, string(hashed), nil
}
