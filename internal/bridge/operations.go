package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"murmur/internal/protocol"
	"murmur/internal/services"
)

// TranscribeRequest describes one transcription job.
type TranscribeRequest struct {
	InputFile string
	OutputDir string
	Model     string
	Formats   []string
	Language  string
}

// TranscribeResult is the typed payload of a successful transcribe command.
type TranscribeResult struct {
	OutputFiles []string `json:"output_files"`
	Duration    float64  `json:"duration"`
	Language    string   `json:"language"`
	ModelUsed   string   `json:"model_used"`
}

// ModelInfo describes one available transcription model.
type ModelInfo struct {
	Name        string   `json:"name"`
	Size        string   `json:"size"`
	Description string   `json:"description"`
	Languages   []string `json:"languages"`
}

// SearchResult is one semantic search hit over indexed transcripts.
type SearchResult struct {
	Content    string  `json:"content"`
	SourceFile string  `json:"source_file"`
	Timestamp  string  `json:"timestamp"`
	Score      float64 `json:"score"`
}

// IndexResult reports the outcome of indexing a transcript.
type IndexResult struct {
	Indexed       bool `json:"indexed"`
	DocumentCount int  `json:"document_count"`
}

// Transcribe runs a transcription job and returns the typed result. The
// request language, when set, is normalized to a canonical BCP 47 tag before
// dispatch.
func (b *Bridge) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if strings.TrimSpace(req.InputFile) == "" {
		return nil, services.Wrap(services.ErrValidation, "bridge", "transcribe", "input file required", nil)
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "bridge", "transcribe", "output directory required", nil)
	}

	params := map[string]any{
		"input_file": req.InputFile,
		"output_dir": req.OutputDir,
		"model":      req.Model,
		"formats":    req.Formats,
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "bridge", "transcribe", fmt.Sprintf("unrecognized language %q", lang), err)
		}
		params["language"] = tag.String()
	}

	data, err := b.ExecuteCommand(ctx, protocol.NewCommand("transcribe", params))
	if err != nil {
		return nil, err
	}

	var result TranscribeResult
	if err := decodePayload(data, &result); err != nil {
		return nil, err
	}
	if len(result.OutputFiles) == 0 {
		return nil, missingData("output_files")
	}
	return &result, nil
}

// ExtractAudio extracts the audio stream from a media file and returns the
// written output path.
func (b *Bridge) ExtractAudio(ctx context.Context, inputFile, outputFile string) (string, error) {
	if strings.TrimSpace(inputFile) == "" {
		return "", services.Wrap(services.ErrValidation, "bridge", "extract", "input file required", nil)
	}
	if strings.TrimSpace(outputFile) == "" {
		return "", services.Wrap(services.ErrValidation, "bridge", "extract", "output file required", nil)
	}

	data, err := b.ExecuteCommand(ctx, protocol.NewCommand("extract", map[string]any{
		"input_file":  inputFile,
		"output_file": outputFile,
	}))
	if err != nil {
		return "", err
	}

	var result struct {
		OutputFile string `json:"output_file"`
	}
	if err := decodePayload(data, &result); err != nil {
		return "", err
	}
	if result.OutputFile == "" {
		return "", missingData("output_file")
	}
	return result.OutputFile, nil
}

// ListModels returns the models the worker can transcribe with.
func (b *Bridge) ListModels(ctx context.Context) ([]ModelInfo, error) {
	data, err := b.ExecuteCommand(ctx, protocol.NewCommand("list_models", nil))
	if err != nil {
		return nil, err
	}

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := decodePayload(data, &result); err != nil {
		return nil, err
	}
	if result.Models == nil {
		return nil, missingData("models")
	}
	return result.Models, nil
}

// ChatbotSearch runs a semantic search over indexed transcripts.
func (b *Bridge) ChatbotSearch(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, services.Wrap(services.ErrValidation, "bridge", "chatbot search", "query required", nil)
	}

	data, err := b.ExecuteCommand(ctx, protocol.NewCommand("chatbot", map[string]any{
		"subcommand": "search",
		"query":      query,
		"threshold":  threshold,
		"limit":      limit,
	}))
	if err != nil {
		return nil, err
	}

	var result struct {
		Results []SearchResult `json:"results"`
	}
	if err := decodePayload(data, &result); err != nil {
		return nil, err
	}
	if result.Results == nil {
		return nil, missingData("results")
	}
	return result.Results, nil
}

// ChatbotIndex adds a transcript to the semantic search index.
func (b *Bridge) ChatbotIndex(ctx context.Context, filePath, content string) (*IndexResult, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, services.Wrap(services.ErrValidation, "bridge", "chatbot index", "file path required", nil)
	}

	data, err := b.ExecuteCommand(ctx, protocol.NewCommand("chatbot", map[string]any{
		"subcommand": "index",
		"file_path":  filePath,
		"content":    content,
	}))
	if err != nil {
		return nil, err
	}

	var result IndexResult
	if err := decodePayload(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// decodePayload converts the envelope's loosely-typed data payload into a
// typed struct. The worker contract is success-flag-plus-well-formed-payload;
// success=true is not trusted alone, so a missing or malformed payload is an
// InvalidResponseError.
func decodePayload(data map[string]any, out any) error {
	if data == nil {
		return missingData("")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return protocol.NewInvalidResponse("unserializable data payload", nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return protocol.NewInvalidResponse("malformed data payload", raw)
	}
	return nil
}

func missingData(field string) error {
	reason := "Missing data"
	if field != "" {
		reason = fmt.Sprintf("Missing data: %s", field)
	}
	return &protocol.InvalidResponseError{Reason: reason}
}
