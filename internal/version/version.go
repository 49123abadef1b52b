package version

import (
	"fmt"
	"runtime"
)

// Build metadata, set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Protocol is the frame wire format version shared by host and extension.
// Both sides must be built with the same value.
const Protocol = 1

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	Protocol  int    `json:"protocol"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		Protocol:  Protocol,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the application version string.
func String() string {
	return Version
}

// ClientName names a NATS connection so `nats server report connections`
// shows which side and build it belongs to, e.g. "vcam-host/1.2.0".
func ClientName(role string) string {
	return fmt.Sprintf("vcam-%s/%s", role, Version)
}
