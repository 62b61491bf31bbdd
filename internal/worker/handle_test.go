package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/protocol"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func startHandle(t *testing.T, body string) *Handle {
	t.Helper()
	script := writeScript(t, body)
	h := NewHandle("/bin/sh", []string{script})
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(h.Terminate)
	return h
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, event)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

func TestStartFailsForMissingExecutable(t *testing.T) {
	h := NewHandle("/nonexistent/python3", []string{"worker.py"})
	err := h.Start(context.Background())
	var launch *LaunchFailedError
	if !errors.As(err, &launch) {
		t.Fatalf("expected LaunchFailedError, got %v", err)
	}
}

func TestSendBeforeStart(t *testing.T) {
	h := NewHandle("/bin/sh", nil)
	if _, err := h.Send(context.Background(), protocol.NewCommand("test", nil)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestSendStreamsProgressThenEnvelope(t *testing.T) {
	h := startHandle(t, `
read line
echo '{"type":"progress","progress":0.25,"status":"extracting audio"}'
echo '{"type":"progress","progress":0.75,"status":"transcribing"}'
echo '{"success":true,"data":{"result":"success"}}'
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("test", map[string]any{"data": "value"}))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	all := drain(t, events)
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(all), all)
	}
	if all[0].Progress == nil || all[0].Progress.Progress != 0.25 {
		t.Fatalf("unexpected first event: %+v", all[0])
	}
	if all[1].Progress == nil || all[1].Progress.Status != "transcribing" {
		t.Fatalf("unexpected second event: %+v", all[1])
	}
	if all[2].Response == nil || !all[2].Response.Success {
		t.Fatalf("expected terminal envelope, got %+v", all[2])
	}
	if all[2].Response.Data["result"] != "success" {
		t.Fatalf("unexpected payload: %v", all[2].Response.Data)
	}
}

func TestSendRejectsConcurrentCommand(t *testing.T) {
	h := startHandle(t, `
read line
sleep 2
echo '{"success":true,"data":{}}'
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("slow", nil))
	if err != nil {
		t.Fatalf("first Send returned error: %v", err)
	}

	if _, err := h.Send(context.Background(), protocol.NewCommand("second", nil)); !errors.Is(err, ErrProcessAlreadyRunning) {
		t.Fatalf("expected ErrProcessAlreadyRunning, got %v", err)
	}

	drain(t, events)
}

func TestSequentialCommandsReuseProcess(t *testing.T) {
	h := startHandle(t, `
while read line; do
  echo '{"success":true,"data":{"echo":1}}'
done
`)

	for i := 0; i < 3; i++ {
		events, err := h.Send(context.Background(), protocol.NewCommand("ping", nil))
		if err != nil {
			t.Fatalf("Send %d returned error: %v", i, err)
		}
		all := drain(t, events)
		if len(all) != 1 || all[0].Response == nil {
			t.Fatalf("Send %d: unexpected events %+v", i, all)
		}
	}
}

func TestEarlyExitYieldsProcessTerminated(t *testing.T) {
	h := startHandle(t, `
read line
echo '{"type":"progress","progress":0.1,"status":"starting"}'
exit 3
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("doomed", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	all := drain(t, events)
	last := all[len(all)-1]
	var terminated *ProcessTerminatedError
	if !errors.As(last.Err, &terminated) {
		t.Fatalf("expected ProcessTerminatedError, got %+v", last)
	}
	if terminated.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", terminated.ExitCode)
	}
}

func TestMalformedLineEndsStreamWithInvalidResponse(t *testing.T) {
	h := startHandle(t, `
read line
echo 'this is not json'
echo '{"success":true,"data":{}}'
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("garbled", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	all := drain(t, events)
	last := all[len(all)-1]
	var invalid *protocol.InvalidResponseError
	if !errors.As(last.Err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %+v", last)
	}
}

func TestContextCancellationTerminatesExchange(t *testing.T) {
	h := startHandle(t, `
read line
sleep 30
echo '{"success":true,"data":{}}'
`)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.Send(ctx, protocol.NewCommand("stuck", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()

	all := drain(t, events)
	last := all[len(all)-1]
	if !errors.Is(last.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %+v", last)
	}
	if h.Running() {
		t.Fatal("expected process to be terminated after cancellation")
	}
}

func TestStartRelaunchesAfterTerminate(t *testing.T) {
	h := startHandle(t, `
while read line; do
  echo '{"success":true,"data":{"echo":1}}'
done
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("ping", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	drain(t, events)

	h.Terminate()
	if h.Running() {
		t.Fatal("expected handle to report not running after terminate")
	}

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start after terminate returned error: %v", err)
	}
	events, err = h.Send(context.Background(), protocol.NewCommand("ping", nil))
	if err != nil {
		t.Fatalf("Send after restart returned error: %v", err)
	}
	all := drain(t, events)
	if len(all) != 1 || all[0].Response == nil || !all[0].Response.Success {
		t.Fatalf("expected successful exchange after restart, got %+v", all)
	}
}

func TestStartRelaunchesAfterWorkerExit(t *testing.T) {
	h := startHandle(t, `
read line
echo '{"success":true,"data":{}}'
`)

	events, err := h.Send(context.Background(), protocol.NewCommand("first", nil))
	if err != nil {
		t.Fatalf("first Send returned error: %v", err)
	}
	drain(t, events)

	// The script exits after one reply, so this exchange fails against the
	// dead process one way or another.
	events, err = h.Send(context.Background(), protocol.NewCommand("second", nil))
	if err == nil {
		all := drain(t, events)
		if last := all[len(all)-1]; last.Err == nil {
			t.Fatalf("expected stream failure against dead process, got %+v", all)
		}
	}

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start after worker exit returned error: %v", err)
	}
	events, err = h.Send(context.Background(), protocol.NewCommand("third", nil))
	if err != nil {
		t.Fatalf("Send after relaunch returned error: %v", err)
	}
	all := drain(t, events)
	if len(all) != 1 || all[0].Response == nil || !all[0].Response.Success {
		t.Fatalf("expected successful exchange after relaunch, got %+v", all)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	h := startHandle(t, `
while read line; do :; done
`)
	h.Terminate()
	h.Terminate()
	if h.Running() {
		t.Fatal("expected handle to report not running")
	}
}
