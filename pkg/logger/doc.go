// Package logger builds the structured slog logger used across the dashboard:
// JSON in production, human-readable text elsewhere, tagged with the
// deployment environment.
package logger
