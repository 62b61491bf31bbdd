// Package worker owns the external worker process lifecycle: launch, one
// command/response exchange at a time, and termination. A Handle is a
// single-flight resource; the batch scheduler achieves parallelism by running
// several handles, never by pipelining commands on one. Callers must drain
// the event stream returned by Send until it closes.
package worker
