// Package provider resolves identity provider kinds to their capability
// profile and authorization start URL.
//
// Two auth methods exist. IdC providers (BuilderId, Enterprise, Internal)
// go through AWS SSO-OIDC dynamic client registration; social providers
// (Google, Github) go through the proprietary login proxy.
//
//	p, err := provider.Lookup(provider.Google)
//	url, err := provider.ResolveStartURL(provider.Enterprise, userURL)
package provider
