package version

import "fmt"

// ビルド時に -ldflags "-X" で上書きされる
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info は /status に載せるビルド情報
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns a formatted version string
func String() string {
	return fmt.Sprintf("v%s (commit: %s, built: %s)", Version, Commit, BuildTime)
}
