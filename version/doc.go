// Package version reports the tokenkeeper build: version, commit and build
// time, set at link time:
//
//	go build -ldflags "-X github.com/kbukum/tokenkeeper/version.Version=1.0.0 \
//	  -X github.com/kbukum/tokenkeeper/version.GitCommit=$(git rev-parse HEAD)"
//
// The same version feeds the User-Agent sent to the identity backends.
package version
