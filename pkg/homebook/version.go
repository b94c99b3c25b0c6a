// Package homebook holds build information shared by the homebook binaries.
package homebook

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/homebook/pkg/homebook.Version=...".
var Version = "0.1.0"

// ModulePath is the Go module path of homebook.
const ModulePath = "github.com/mesh-intelligence/homebook"
