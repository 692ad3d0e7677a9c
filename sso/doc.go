// Package sso talks to the AWS SSO-OIDC service: dynamic client
// registration, authorization code and refresh token exchange, and
// construction of the browser-facing authorize URL.
//
// A Client is bound to one region. Registrations may be memoized per
// region and issuer until their client secret expires.
package sso
