package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeCommandProducesSingleLine(t *testing.T) {
	data, err := EncodeCommand(NewCommand("transcribe", map[string]any{
		"input_file": "/media/talk.mp4",
		"model":      "base",
	}))
	if err != nil {
		t.Fatalf("EncodeCommand returned error: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatal("encoded command must be newline-terminated")
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", data)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded command is not valid JSON: %v", err)
	}
	if decoded["command"] != "transcribe" {
		t.Fatalf("unexpected command field: %v", decoded["command"])
	}
	if decoded["input_file"] != "/media/talk.mp4" {
		t.Fatalf("unexpected input_file: %v", decoded["input_file"])
	}
}

func TestEncodeCommandRequiresName(t *testing.T) {
	if _, err := EncodeCommand(Command{}); err == nil {
		t.Fatal("expected error for empty command name")
	}
}

func TestEncodeCommandRejectsReservedKey(t *testing.T) {
	_, err := EncodeCommand(NewCommand("test", map[string]any{"command": "other"}))
	if err == nil {
		t.Fatal("expected error for reserved parameter key")
	}
}

func TestDecodeLineClassifiesProgress(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"type":"progress","progress":0.4,"status":"transcribing","eta":12.5}`))
	if err != nil {
		t.Fatalf("DecodeLine returned error: %v", err)
	}
	event, ok := msg.(*ProgressEvent)
	if !ok {
		t.Fatalf("expected progress event, got %T", msg)
	}
	if event.Progress != 0.4 || event.Status != "transcribing" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.ETA == nil || *event.ETA != 12.5 {
		t.Fatalf("expected eta 12.5, got %v", event.ETA)
	}
}

func TestDecodeLineClampsProgress(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"type":"progress","progress":1.7,"status":"late"}`))
	if err != nil {
		t.Fatalf("DecodeLine returned error: %v", err)
	}
	if msg.(*ProgressEvent).Progress != 1 {
		t.Fatalf("expected clamped progress, got %v", msg.(*ProgressEvent).Progress)
	}
}

func TestDecodeLineClassifiesEnvelope(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"success":true,"data":{"result":"success"}}`))
	if err != nil {
		t.Fatalf("DecodeLine returned error: %v", err)
	}
	envelope, ok := msg.(*ResponseEnvelope)
	if !ok {
		t.Fatalf("expected envelope, got %T", msg)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
	if envelope.Data["result"] != "success" {
		t.Fatalf("unexpected payload: %v", envelope.Data)
	}
}

func TestDecodeLineFailureEnvelopeCarriesCode(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"success":false,"error":"Python execution failed","code":"EXECUTION_ERROR"}`))
	if err != nil {
		t.Fatalf("DecodeLine returned error: %v", err)
	}
	envelope := msg.(*ResponseEnvelope)
	if envelope.Success {
		t.Fatal("expected failure envelope")
	}
	if envelope.Error != "Python execution failed" || envelope.Code != "EXECUTION_ERROR" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestDecodeLineRejectsFailureWithoutMessage(t *testing.T) {
	_, err := DecodeLine([]byte(`{"success":false}`))
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
}

func TestDecodeLineRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeLine([]byte(`not json at all`))
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if !strings.Contains(invalid.Line, "not json") {
		t.Fatalf("expected offending line in error, got %q", invalid.Line)
	}
}

func TestDecodeLineRejectsMissingSuccess(t *testing.T) {
	_, err := DecodeLine([]byte(`{"data":{"x":1}}`))
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
}

func TestDecodeLineTruncatesLongLines(t *testing.T) {
	line := `{"garbage":"` + strings.Repeat("x", 600)
	_, err := DecodeLine([]byte(line))
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if len(invalid.Line) > maxDiagnosticLine+3 {
		t.Fatalf("expected truncated diagnostic, got %d bytes", len(invalid.Line))
	}
}

func TestEncodeDecodeRoundTripDiscriminator(t *testing.T) {
	// A well-formed encoded command echoed back by the worker must decode as
	// a terminal envelope, never as progress.
	data, err := EncodeCommand(NewCommand("test", map[string]any{"success": true, "data": map[string]any{}}))
	if err != nil {
		t.Fatalf("EncodeCommand returned error: %v", err)
	}
	msg, err := DecodeLine(data)
	if err != nil {
		t.Fatalf("DecodeLine returned error: %v", err)
	}
	if _, ok := msg.(*ResponseEnvelope); !ok {
		t.Fatalf("expected envelope classification, got %T", msg)
	}
}
