// Package scheduler runs queued transcription tasks through a bounded pool
// of worker processes. Admission follows queue order, a pause gate holds new
// admissions without touching running tasks, and cancellation terminates
// workers and settles every task into a terminal state.
package scheduler
