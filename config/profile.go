package config

import (
	"fmt"
	"strings"
)

// Profile names one configuration bundle. Exactly one is active per process.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
	ProfileTest        Profile = "test"
)

var profileAliases = map[string]Profile{
	"development": ProfileDevelopment,
	"dev":         ProfileDevelopment,
	"production":  ProfileProduction,
	"prod":        ProfileProduction,
	"test":        ProfileTest,
}

// ParseProfile maps an environment indicator to its profile. An empty
// indicator selects development; an unrecognized one is a ConfigError.
func ParseProfile(indicator string) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(indicator))
	if name == "" {
		return ProfileDevelopment, nil
	}
	profile, ok := profileAliases[name]
	if !ok {
		return "", NewError(EnvironmentKey, fmt.Sprintf("has unrecognized value %q (want development, production or test)", indicator))
	}
	return profile, nil
}

// Overrides returns the keys this profile changes relative to the base
// defaults. The returned map is a fresh copy.
func (p Profile) Overrides() map[string]any {
	var src map[string]any
	switch p {
	case ProfileDevelopment:
		src = map[string]any{
			"debug":              true,
			"log_level":          "DEBUG",
			"docs_enabled":       true,
			"database_url":       "sqlite:///./data/keystone.db",
			"auto_create_schema": true,
		}
	case ProfileProduction:
		src = map[string]any{
			"debug":     false,
			"log_level": "INFO",
		}
	case ProfileTest:
		src = map[string]any{
			"debug":               true,
			"log_level":           "WARN",
			"database_url":        "sqlite:///:memory:",
			"auto_create_schema":  true,
			"log_console_enabled": false,
		}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (p Profile) String() string { return string(p) }
