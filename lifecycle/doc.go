// Package lifecycle drives a token from login through refresh to revocation.
//
// A Coordinator owns one Flow per auth method. Login runs the PKCE
// authorization code flow against the loopback callback receiver and saves
// the result. Refresh and EnsureFresh renew a stored record in place. A
// Watcher polls the store and refreshes records that are about to expire.
// Delete removes a record, revoking it remotely first when the backend
// supports that.
package lifecycle
