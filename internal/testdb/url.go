package testdb

import "os"

// Environment variables consulted for an existing test database, in order.
const (
	EnvTestDatabaseURL = "VENDORFLOW_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

var ciMarkers = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	return firstEnv(EnvTestDatabaseURL, EnvDatabaseURL)
}

// IsCI reports whether the process runs under a known CI provider.
func IsCI() bool {
	return firstEnv(ciMarkers...) != ""
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
