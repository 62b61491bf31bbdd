// Package protocol implements the line-delimited JSON wire format spoken
// between murmur and the external media worker process.
//
// Each request is one JSON object on a single line. The worker answers with
// zero or more progress lines (tagged "type": "progress") followed by exactly
// one terminal response envelope carrying a success flag and either a data
// payload or an error message with a machine-readable code. The codec is
// stateless; malformed lines decode to InvalidResponseError rather than
// aborting the stream reader.
package protocol
