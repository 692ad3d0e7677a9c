// Package pkce generates Proof Key for Code Exchange parameters and the
// OAuth state value that accompanies every authorization attempt.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"

	"github.com/google/uuid"

	"github.com/kbukum/tokenkeeper/errors"
)

// MethodS256 is the only challenge method this package produces.
const MethodS256 = "S256"

// verifierBytes yields a 43 character base64url verifier.
const verifierBytes = 32

// Params holds one authorization attempt's PKCE material. It is never persisted.
//   - Send CodeChallenge + ChallengeMethod + State in the authorization URL
//   - Send CodeVerifier in the token exchange
//   - Compare State against the callback before exchanging
type Params struct {
	CodeVerifier    string
	CodeChallenge   string
	ChallengeMethod string
	State           string
}

// Generate creates fresh PKCE parameters from crypto/rand.
func Generate() (*Params, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom creates PKCE parameters reading entropy from r.
func GenerateFrom(r io.Reader) (*Params, error) {
	verifier := make([]byte, verifierBytes)
	if _, err := io.ReadFull(r, verifier); err != nil {
		return nil, errors.Internal("entropy source unavailable", err)
	}
	verifierStr := base64.RawURLEncoding.EncodeToString(verifier)

	state, err := generateState(r)
	if err != nil {
		return nil, err
	}

	return &Params{
		CodeVerifier:    verifierStr,
		CodeChallenge:   Challenge(verifierStr),
		ChallengeMethod: MethodS256,
		State:           state,
	}, nil
}

// GenerateState returns a random (version 4) UUID string.
func GenerateState() (string, error) {
	return generateState(rand.Reader)
}

func generateState(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", errors.Internal("entropy source unavailable", err)
	}
	return id.String(), nil
}

// Challenge derives the S256 challenge for a verifier.
func Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// VerifyChallenge reports whether challenge was derived from verifier.
func VerifyChallenge(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}

// StateMatches compares a returned state against the expected one in constant time.
func StateMatches(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
