package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/protocol"
	"murmur/internal/worker"
)

// stubStreamer scripts worker responses without launching a process.
type stubStreamer struct {
	mu         sync.Mutex
	sent       []protocol.Command
	script     func(cmd protocol.Command) []worker.Event
	hold       chan struct{}
	terminated bool
}

func (s *stubStreamer) Start(context.Context) error { return nil }

func (s *stubStreamer) Send(ctx context.Context, cmd protocol.Command) (<-chan worker.Event, error) {
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	hold := s.hold
	s.mu.Unlock()

	events := make(chan worker.Event, 8)
	go func() {
		defer close(events)
		if hold != nil {
			<-hold
		}
		for _, event := range s.script(cmd) {
			events <- event
		}
	}()
	return events, nil
}

func (s *stubStreamer) Terminate() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
}

func (s *stubStreamer) lastCommand() protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func successEnvelope(data map[string]any) []worker.Event {
	return []worker.Event{{Response: &protocol.ResponseEnvelope{Success: true, Data: data}}}
}

func newTestBridge(script func(cmd protocol.Command) []worker.Event) (*Bridge, *stubStreamer) {
	stub := &stubStreamer{script: script}
	return New(nil, WithHandle(stub)), stub
}

func TestExecuteCommandReturnsDataPayload(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return successEnvelope(map[string]any{"result": "success"})
	})

	data, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("test", map[string]any{"data": "value"}))
	if err != nil {
		t.Fatalf("ExecuteCommand returned error: %v", err)
	}
	if data["result"] != "success" {
		t.Fatalf("unexpected payload: %v", data)
	}
	if state := b.Snapshot(); state.Busy || state.LastErr != nil {
		t.Fatalf("expected idle state with no error, got %+v", state)
	}
}

func TestExecuteCommandSurfacesPythonError(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return []worker.Event{{Response: &protocol.ResponseEnvelope{
			Success: false,
			Error:   "Python execution failed",
			Code:    "EXECUTION_ERROR",
		}}}
	})

	_, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("test", nil))
	var pyErr *PythonError
	if !errors.As(err, &pyErr) {
		t.Fatalf("expected PythonError, got %v", err)
	}
	if pyErr.Message != "Python execution failed" || pyErr.Code != "EXECUTION_ERROR" {
		t.Fatalf("unexpected error: %+v", pyErr)
	}
	if b.Snapshot().LastErr == nil {
		t.Fatal("expected last error to be recorded")
	}
}

func TestExecuteCommandDefaultsMissingCode(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return []worker.Event{{Response: &protocol.ResponseEnvelope{Success: false, Error: "boom"}}}
	})

	_, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("test", nil))
	var pyErr *PythonError
	if !errors.As(err, &pyErr) {
		t.Fatalf("expected PythonError, got %v", err)
	}
	if pyErr.Code != DefaultErrorCode {
		t.Fatalf("expected default code, got %q", pyErr.Code)
	}
}

func TestExecuteCommandRejectsConcurrentInvocation(t *testing.T) {
	hold := make(chan struct{})
	stub := &stubStreamer{
		hold: hold,
		script: func(protocol.Command) []worker.Event {
			return successEnvelope(map[string]any{})
		},
	}
	b := New(nil, WithHandle(stub))

	done := make(chan error, 1)
	go func() {
		_, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("slow", nil))
		done <- err
	}()

	// Wait until the first command is marked in flight.
	deadline := time.After(time.Second)
	for !b.Snapshot().Busy {
		select {
		case <-deadline:
			t.Fatal("first command never became busy")
		case <-time.After(time.Millisecond):
		}
	}

	start := time.Now()
	_, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("second", nil))
	if !errors.Is(err, worker.ErrProcessAlreadyRunning) {
		t.Fatalf("expected ErrProcessAlreadyRunning, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("rejection should be immediate, took %v", elapsed)
	}

	close(hold)
	if err := <-done; err != nil {
		t.Fatalf("first command failed: %v", err)
	}
}

func TestProgressRepublishedBeforeTerminal(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return []worker.Event{
			{Progress: &protocol.ProgressEvent{Progress: 0.3, Status: "transcribing"}},
			{Progress: &protocol.ProgressEvent{Progress: 0.9, Status: "writing output"}},
			{Response: &protocol.ResponseEnvelope{Success: true, Data: map[string]any{}}},
		}
	})

	var mu sync.Mutex
	var seen []float64
	b.OnProgress(func(event protocol.ProgressEvent) {
		mu.Lock()
		seen = append(seen, event.Progress)
		mu.Unlock()
	})

	if _, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("test", nil)); err != nil {
		t.Fatalf("ExecuteCommand returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 0.3 || seen[1] != 0.9 {
		t.Fatalf("expected republished progress [0.3 0.9], got %v", seen)
	}
}

func TestExecuteCommandForwardsStreamErrors(t *testing.T) {
	streamErr := &worker.ProcessTerminatedError{ExitCode: 9}
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return []worker.Event{{Err: streamErr}}
	})

	_, err := b.ExecuteCommand(context.Background(), protocol.NewCommand("test", nil))
	var terminated *worker.ProcessTerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("expected ProcessTerminatedError, got %v", err)
	}

	// The bridge must reset to idle so the next command can run.
	if b.Snapshot().Busy {
		t.Fatal("bridge stuck busy after failure")
	}
}

func TestTranscribeMissingDataFailsInvalidResponse(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return []worker.Event{{Response: &protocol.ResponseEnvelope{Success: true}}}
	})

	_, err := b.Transcribe(context.Background(), TranscribeRequest{
		InputFile: "/media/talk.mp4",
		OutputDir: "/out",
		Model:     "base",
		Formats:   []string{"txt"},
	})
	var invalid *protocol.InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if !strings.Contains(invalid.Reason, "Missing data") {
		t.Fatalf("expected missing data reason, got %q", invalid.Reason)
	}
}

func TestTranscribeBuildsCommandShape(t *testing.T) {
	b, stub := newTestBridge(func(protocol.Command) []worker.Event {
		return successEnvelope(map[string]any{
			"output_files": []string{"/out/talk.txt", "/out/talk.srt"},
			"duration":     61.5,
			"language":     "en",
			"model_used":   "base",
		})
	})

	result, err := b.Transcribe(context.Background(), TranscribeRequest{
		InputFile: "/media/talk.mp4",
		OutputDir: "/out",
		Model:     "base",
		Formats:   []string{"txt", "srt"},
		Language:  "EN",
	})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if len(result.OutputFiles) != 2 || result.Duration != 61.5 || result.ModelUsed != "base" {
		t.Fatalf("unexpected result: %+v", result)
	}

	cmd := stub.lastCommand()
	if cmd.Name != "transcribe" {
		t.Fatalf("unexpected command name: %q", cmd.Name)
	}
	if cmd.Params["input_file"] != "/media/talk.mp4" || cmd.Params["output_dir"] != "/out" {
		t.Fatalf("unexpected params: %v", cmd.Params)
	}
	if cmd.Params["language"] != "en" {
		t.Fatalf("expected normalized language tag, got %v", cmd.Params["language"])
	}
}

func TestTranscribeRejectsUnknownLanguage(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return successEnvelope(map[string]any{})
	})
	_, err := b.Transcribe(context.Background(), TranscribeRequest{
		InputFile: "/media/talk.mp4",
		OutputDir: "/out",
		Language:  "not-a-language-tag!!",
	})
	if err == nil {
		t.Fatal("expected error for unparseable language tag")
	}
}

func TestExtractAudio(t *testing.T) {
	b, stub := newTestBridge(func(protocol.Command) []worker.Event {
		return successEnvelope(map[string]any{"output_file": "/out/talk.wav"})
	})

	path, err := b.ExtractAudio(context.Background(), "/media/talk.mp4", "/out/talk.wav")
	if err != nil {
		t.Fatalf("ExtractAudio returned error: %v", err)
	}
	if path != "/out/talk.wav" {
		t.Fatalf("unexpected output path: %q", path)
	}
	if cmd := stub.lastCommand(); cmd.Name != "extract" {
		t.Fatalf("unexpected command: %q", cmd.Name)
	}
}

func TestListModels(t *testing.T) {
	b, _ := newTestBridge(func(protocol.Command) []worker.Event {
		return successEnvelope(map[string]any{
			"models": []map[string]any{
				{"name": "base", "size": "142MB", "description": "general purpose", "languages": []string{"en", "de"}},
			},
		})
	})

	models, err := b.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels returned error: %v", err)
	}
	if len(models) != 1 || models[0].Name != "base" || len(models[0].Languages) != 2 {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestChatbotSearchAndIndex(t *testing.T) {
	b, stub := newTestBridge(func(cmd protocol.Command) []worker.Event {
		if cmd.Params["subcommand"] == "search" {
			return successEnvelope(map[string]any{
				"results": []map[string]any{
					{"content": "hello world", "source_file": "/t/a.txt", "timestamp": "00:01:02", "score": 0.87},
				},
			})
		}
		return successEnvelope(map[string]any{"indexed": true, "document_count": 4})
	})

	results, err := b.ChatbotSearch(context.Background(), "hello", 0.35, 10)
	if err != nil {
		t.Fatalf("ChatbotSearch returned error: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0.87 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if cmd := stub.lastCommand(); cmd.Name != "chatbot" || cmd.Params["threshold"] != 0.35 {
		t.Fatalf("unexpected search command: %+v", cmd)
	}

	index, err := b.ChatbotIndex(context.Background(), "/t/a.txt", "hello world")
	if err != nil {
		t.Fatalf("ChatbotIndex returned error: %v", err)
	}
	if !index.Indexed || index.DocumentCount != 4 {
		t.Fatalf("unexpected index result: %+v", index)
	}
}
