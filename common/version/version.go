// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/dareon-io/dareon2/common/version.Version=v2.0.3"
package version

import "fmt"

var (
	Version   = "v2.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("dareon %s (%s) built at %s", Version, GitCommit, BuildTime)
}
