// Package storage is the persistence backend of the token store: a flat
// key/value namespace of small JSON documents.
//
// # Backends
//
//   - storage/local: one file per key in a directory, written atomically
//   - storage/s3: one object per key under a bucket prefix
//
// Backends register themselves in init; import them for side effects:
//
//	import _ "github.com/kbukum/tokenkeeper/storage/local"
//
// # Configuration
//
//	store:
//	  provider: "local"
//	  dir: "~/.tokenkeeper/tokens"
package storage
