package config

import (
	"os"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

var environmentAliases = map[string]string{
	"dev":  environmentDevelopment,
	"prod": environmentProduction,
	"stag": environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveEnvSpecificPath swaps the default configuration file for the one
// registered for the current environment. Explicitly chosen paths win.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}

	env := getAppEnvironment()
	if envPath, ok := envPaths[env]; ok && path == defaultPath {
		return envPath
	}

	return path
}

// AppEnvironment exposes the normalised APP_ENV value.
func AppEnvironment() string {
	return getAppEnvironment()
}
