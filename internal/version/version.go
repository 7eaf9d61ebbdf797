package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/MrSnakeDoc/listingd/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// String returns a one-line build description
func String() string {
	return fmt.Sprintf("listingd %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
