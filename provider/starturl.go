package provider

import (
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
)

const (
	// BuilderIDStartURL is the fixed start URL for AWS Builder ID.
	BuilderIDStartURL = "https://view.awsapps.com/start"
	// DefaultStartURL is used when no URL is supplied for a non-Enterprise kind.
	DefaultStartURL = "https://amzn.awsapps.com/start"
)

// ResolveStartURL returns the authorization start URL for kind.
//
// Enterprise requires userSupplied. BuilderId ignores it. Every other kind
// uses userSupplied when present and DefaultStartURL otherwise.
func ResolveStartURL(kind Kind, userSupplied string) (string, error) {
	userSupplied = strings.TrimSpace(userSupplied)
	switch kind {
	case Enterprise:
		if userSupplied == "" {
			return "", errors.Configuration("startUrl", "Enterprise provider requires a start URL")
		}
		return userSupplied, nil
	case BuilderID:
		return BuilderIDStartURL, nil
	default:
		if userSupplied != "" {
			return userSupplied, nil
		}
		return DefaultStartURL, nil
	}
}
