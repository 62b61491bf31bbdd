// Package services defines shared utilities consumed by the bridge, the batch
// scheduler, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, command names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into setup problems, validation problems, and retryable failures, and
//     attach recovery hints for user-facing summaries.
package services
