package config

import "os"

// Environment variables that override the config file.
const (
	EnvAPIURL    = "PAINTS_API_URL"
	EnvEventsURL = "PAINTS_EVENTS_URL"
	EnvSnapshot  = "PAINTS_SNAPSHOT"
	EnvListen    = "PAINTS_LISTEN"
	EnvLogLevel  = "PAINTS_LOG_LEVEL"
)

func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func (c *Config) applyEnv() {
	c.API.URL = GetEnvOrDefault(EnvAPIURL, c.API.URL)
	c.Events.URL = GetEnvOrDefault(EnvEventsURL, c.Events.URL)
	c.Snapshot.Path = GetEnvOrDefault(EnvSnapshot, c.Snapshot.Path)
	c.HTTP.Listen = GetEnvOrDefault(EnvListen, c.HTTP.Listen)
	c.Log.Level = GetEnvOrDefault(EnvLogLevel, c.Log.Level)
}
