package health

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	buildOnce   sync.Once
	buildString string
)

// getBuildInfo resolves a short build identifier once. Environment
// variables set by the release pipeline win over what the Go toolchain
// embedded in the binary.
func getBuildInfo() string {
	buildOnce.Do(func() {
		version := getEnvOrDefault("BUILD_VERSION", "dev")
		commit := getEnvOrDefault("BUILD_COMMIT", "")

		if commit == "" {
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, setting := range info.Settings {
					if setting.Key == "vcs.revision" {
						commit = setting.Value
						break
					}
				}
			}
		}
		if commit == "" {
			commit = "unknown"
		}
		if len(commit) > 7 {
			commit = commit[:7]
		}

		buildString = fmt.Sprintf("%s-%s (%s)", version, commit, runtime.Version())
	})

	return buildString
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
