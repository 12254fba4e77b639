// Package version exposes the build version string.
package version

// Version is set at build time via
// -ldflags "-X github.com/quantarc/pitcache/pkg/version.Version=v1.2.3".
var Version = "dev" //nolint:gochecknoglobals // build-time injection target

// GetVersion returns the current build version.
func GetVersion() string {
	return Version
}
