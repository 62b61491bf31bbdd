// Package bridge is the stable façade between murmur and the external media
// worker. It serializes domain operations (transcribe, extract, list models,
// chatbot search/index) into wire commands, drains the worker's response
// stream, validates payloads, and republishes progress to an observer.
//
// A bridge is single-flight: one command at a time, concurrent calls are
// rejected with ErrProcessAlreadyRunning rather than queued. Callers needing
// parallelism construct one bridge per concurrent slot (see the scheduler's
// bridge factory).
package bridge
