package server

import "strings"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// ReportsDir is where run reports are persisted.
	ReportsDir string `mapstructure:"reports_dir" default:"data/reports"`
	// Sources is a comma separated allow-list of logical sources. Empty allows any.
	Sources string `mapstructure:"sources" default:""`
}

// AllowedSources returns the configured allow-list.
func (c Config) AllowedSources() []string {
	var out []string
	for _, s := range strings.Split(c.Sources, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsAllowedSource checks a source against the allow-list.
func (c Config) IsAllowedSource(source string) bool {
	if source == "" {
		return false
	}
	allowed := c.AllowedSources()
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == source {
			return true
		}
	}
	return false
}
