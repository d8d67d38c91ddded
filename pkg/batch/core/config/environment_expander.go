package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands environment variable placeholders in configuration data.
type EnvironmentExpander interface {
	// Expand replaces ${VAR} and $VAR placeholders in input.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands placeholders from the process environment.
// ${VAR:-fallback} yields fallback when VAR is unset or empty; other unset
// variables expand to the empty string.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates and returns a new instance of OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

// Expand implements EnvironmentExpander. It never fails.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	expanded := os.Expand(string(input), func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
	return []byte(expanded), nil
}
