// Package config loads the dashboard configuration from YAML files and
// environment variables. It covers the HTTP listener, polling cadence, section
// fetch limits, logging and the static list of monitored services.
package config
