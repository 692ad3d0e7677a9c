// Package tokenstore validates, persists, lists, reads and deletes token
// records, and computes their expiry status.
//
// A record is a tagged variant: the shared fields live in Common and the
// AuthMethod selects whether the IdC or the Social fields apply. On disk a
// record is one flat JSON document:
//
//	{
//	  "accessToken": "...",
//	  "expiresAt": "2026-01-01T00:00:00.000Z",
//	  "provider": "BuilderId",
//	  "authMethod": "IdC",
//	  "region": "us-east-1",
//	  "clientIdHash": "...",
//	  "savedAt": "...",
//	  "version": "1.0",
//	  "providerId": "BuilderId"
//	}
//
// The store writes through a storage.Storage backend; every write is atomic
// per record. The storage root is passed in at construction, the store never
// consults the environment.
package tokenstore
