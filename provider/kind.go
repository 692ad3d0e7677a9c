package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
)

// Kind identifies an identity provider.
type Kind string

const (
	BuilderID  Kind = "BuilderId"
	Enterprise Kind = "Enterprise"
	Internal   Kind = "Internal"
	Google     Kind = "Google"
	Github     Kind = "Github"
)

// AuthMethod selects the backend protocol and the record schema.
type AuthMethod string

const (
	AuthMethodIdC    AuthMethod = "IdC"
	AuthMethodSocial AuthMethod = "social"
)

// Valid reports whether m is a known auth method.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodIdC || m == AuthMethodSocial
}

// AuthMethods lists the known auth methods.
func AuthMethods() []string {
	return []string{string(AuthMethodIdC), string(AuthMethodSocial)}
}

// ParseKind matches s case-insensitively against the registered kinds.
// "builder-id" and "builderid" both resolve to BuilderId.
func ParseKind(s string) (Kind, error) {
	norm := normalize(s)
	for _, k := range Default().Kinds() {
		if normalize(string(k)) == norm {
			return k, nil
		}
	}
	return "", errors.Configuration("provider", "unknown provider: "+s)
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
}

// ParseAuthMethod accepts "IdC"/"idc" and "social".
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(s) {
	case "idc":
		return AuthMethodIdC, nil
	case "social":
		return AuthMethodSocial, nil
	}
	return "", errors.Configuration("authMethod", "unknown auth method: "+s)
}

// ClientIDHash is the hex SHA-256 of a start URL, used to key IdC client registrations.
func ClientIDHash(startURL string) string {
	sum := sha256.Sum256([]byte(startURL))
	return hex.EncodeToString(sum[:])
}
