package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command is one request sent to the worker process: an operation name plus
// command-specific parameters. Commands are built immediately before dispatch
// and are not reused after the round trip completes.
type Command struct {
	Name   string
	Params map[string]any
}

// NewCommand builds a command with the given name and parameters.
func NewCommand(name string, params map[string]any) Command {
	return Command{Name: name, Params: params}
}

// ProgressEvent is a non-terminal status update emitted while a command runs.
// Progress is a fraction in [0, 1]; ETA is seconds remaining when the worker
// reports one.
type ProgressEvent struct {
	Progress float64  `json:"progress"`
	Status   string   `json:"status"`
	ETA      *float64 `json:"eta,omitempty"`
}

// ResponseEnvelope is the single terminal message ending a command exchange.
// Exactly one envelope terminates each command; it may be preceded by any
// number of progress events.
type ResponseEnvelope struct {
	Success bool
	Data    map[string]any
	Error   string
	Code    string
}

// Message is a decoded worker output line: either *ProgressEvent or
// *ResponseEnvelope.
type Message interface {
	isMessage()
}

func (*ProgressEvent) isMessage()    {}
func (*ResponseEnvelope) isMessage() {}

// InvalidResponseError reports a worker output line that violates the
// protocol: undecodable JSON or a message missing required fields. This is
// always a defect in the worker or a version mismatch, never recoverable by
// retrying the task.
type InvalidResponseError struct {
	Reason string
	Line   string
}

func (e *InvalidResponseError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("invalid worker response: %s", e.Reason)
	}
	return fmt.Sprintf("invalid worker response: %s: %q", e.Reason, e.Line)
}

// NewInvalidResponse builds an InvalidResponseError with the offending line
// truncated for diagnostics.
func NewInvalidResponse(reason string, line []byte) *InvalidResponseError {
	return &InvalidResponseError{Reason: reason, Line: truncateLine(line)}
}

// maxDiagnosticLine bounds how much of an offending line is carried in errors.
const maxDiagnosticLine = 200

func truncateLine(line []byte) string {
	text := strings.TrimSpace(string(line))
	if len(text) > maxDiagnosticLine {
		return text[:maxDiagnosticLine] + "..."
	}
	return text
}

// EncodeCommand serializes a command into one newline-terminated JSON object:
// {"command": <name>, ...params...}. Encoding fails only for empty names,
// reserved parameter keys, or unserializable parameter values.
func EncodeCommand(cmd Command) ([]byte, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, errors.New("encode command: name required")
	}
	payload := make(map[string]any, len(cmd.Params)+1)
	for key, value := range cmd.Params {
		if key == "command" {
			return nil, errors.New(`encode command: parameter key "command" is reserved`)
		}
		payload[key] = value
	}
	payload["command"] = name

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", name, err)
	}
	return append(data, '\n'), nil
}

// DecodeLine classifies one worker output line as a progress event or a
// terminal response envelope. The discriminator is "type": "progress"; any
// other well-formed JSON object is treated as an envelope.
func DecodeLine(line []byte) (Message, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, NewInvalidResponse("empty line", line)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, NewInvalidResponse("not a JSON object", line)
	}

	if typeRaw, ok := raw["type"]; ok {
		var kind string
		if err := json.Unmarshal(typeRaw, &kind); err == nil && kind == "progress" {
			return decodeProgress([]byte(trimmed), line)
		}
	}
	return decodeEnvelope(raw, line)
}

func decodeProgress(data, line []byte) (Message, error) {
	var event ProgressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, NewInvalidResponse("malformed progress event", line)
	}
	if event.Progress < 0 {
		event.Progress = 0
	}
	if event.Progress > 1 {
		event.Progress = 1
	}
	return &event, nil
}

func decodeEnvelope(raw map[string]json.RawMessage, line []byte) (Message, error) {
	successRaw, ok := raw["success"]
	if !ok {
		return nil, NewInvalidResponse("missing success field", line)
	}

	var envelope ResponseEnvelope
	if err := json.Unmarshal(successRaw, &envelope.Success); err != nil {
		return nil, NewInvalidResponse("malformed success field", line)
	}

	if dataRaw, ok := raw["data"]; ok {
		if err := json.Unmarshal(dataRaw, &envelope.Data); err != nil {
			return nil, NewInvalidResponse("malformed data payload", line)
		}
	}
	if errRaw, ok := raw["error"]; ok {
		if err := json.Unmarshal(errRaw, &envelope.Error); err != nil {
			return nil, NewInvalidResponse("malformed error field", line)
		}
	}
	if codeRaw, ok := raw["code"]; ok {
		if err := json.Unmarshal(codeRaw, &envelope.Code); err != nil {
			return nil, NewInvalidResponse("malformed code field", line)
		}
	}

	if !envelope.Success && strings.TrimSpace(envelope.Error) == "" {
		return nil, NewInvalidResponse("failure envelope without error message", line)
	}
	return &envelope, nil
}
