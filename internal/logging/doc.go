// Package logging centralizes slog construction and the structured field
// conventions used across murmur.
//
// Loggers are built from config (console or JSON format, optional file
// outputs), carry a standardized component attribute, and pull task/command
// correlation fields from context. The ProgressSampler keeps worker progress
// streams from flooding the logs.
package logging
