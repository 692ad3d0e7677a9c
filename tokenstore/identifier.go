package tokenstore

import (
	"fmt"
	"regexp"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/tokenkeeper/provider"
)

const (
	idPrefix = "token-"
	idSuffix = ".json"
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	underscores = regexp.MustCompile(`_+`)
	idPattern   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Sanitize turns an account label into an identifier segment matching
// [a-z0-9_-]+. It is idempotent.
func Sanitize(label string) string {
	s := unsafeChars.ReplaceAllString(label, "_")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.ToLower(s)
	if s == "" {
		return "_"
	}
	return s
}

// Identifier builds the storage key of a record.
func Identifier(kind provider.Kind, method provider.AuthMethod, label string, millis int64) string {
	return fmt.Sprintf("%s%s-%s-%s-%d%s", idPrefix, segment(string(kind)), segment(string(method)), Sanitize(label), millis, idSuffix)
}

// segment keeps case, so built-in kinds appear verbatim in identifiers.
func segment(s string) string {
	if s == "" {
		return "unknown"
	}
	return unsafeChars.ReplaceAllString(s, "_")
}

// normalizeID accepts identifiers with or without the .json suffix.
func normalizeID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, ".") || !idPattern.MatchString(id) {
		return "", false
	}
	if !strings.HasSuffix(id, idSuffix) {
		id += idSuffix
	}
	return id, true
}

// AccountLabel reads the email claim of an ID token without verifying it.
// The label only names the file; nothing trusts it.
func AccountLabel(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := gojwt.MapClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	for _, key := range []string{"email", "preferred_username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
