// Package batch models transcription tasks and persists them in a SQLite
// database. Tasks move through pending, running, and terminal states; the
// scheduler package drives the transitions.
package batch
