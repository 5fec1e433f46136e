// Package version holds the release version of the binaries.
package version

// Current is overridden at build time with -ldflags "-X .../internal/version.Current=...".
var Current = "0.1.0"
