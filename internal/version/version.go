package version

import "fmt"

// Populated at build time via -ldflags.
var (
	App       = "tnaflasher"
	Version   string
	GitCommit string
	BuildTime string
)

// String returns the app name and version on one line, for startup logs.
func String() string {
	return fmt.Sprintf("%s %s", App, getVersion())
}

// PrintVersion prints the full version information
func PrintVersion() {
	fmt.Printf("%s version %s\n", App, getVersion())
	if GitCommit != "" {
		fmt.Printf("Git commit: %s\n", getShortCommit())
	}
	if BuildTime != "" {
		fmt.Printf("Build time: %s\n", BuildTime)
	}
}

func getShortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

func getVersion() string {
	if Version != "" {
		return Version
	}
	return "dev"
}
