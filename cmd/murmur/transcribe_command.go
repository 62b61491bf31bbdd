package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/bridge"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var model string
	var formats []string
	var languageFlag string

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			req := bridge.TranscribeRequest{
				InputFile: args[0],
				OutputDir: strings.TrimSpace(outputDir),
				Model:     strings.TrimSpace(model),
				Formats:   formats,
				Language:  strings.TrimSpace(languageFlag),
			}
			if req.OutputDir == "" {
				req.OutputDir = cfg.Paths.OutputDir
			}
			if req.Model == "" {
				req.Model = cfg.Transcription.Model
			}
			if len(req.Formats) == 0 {
				req.Formats = cfg.Transcription.Formats
			}
			if req.Language == "" {
				req.Language = cfg.Transcription.Language
			}

			br := bridge.New(cfg, bridge.WithLogger(ctx.ensureLogger()))
			defer br.Terminate()

			out := cmd.OutOrStdout()
			if !ctx.jsonOutput() {
				printer := newProgressPrinter(out, interactive())
				br.OnProgress(printer.Update)
				defer printer.Finish()
			}

			result, err := br.Transcribe(cmd.Context(), req)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(out, "\nTranscribed %s (model %s, language %s, %.1fs of audio)\n",
				req.InputFile, result.ModelUsed, result.Language, result.Duration)
			for _, file := range result.OutputFiles {
				fmt.Fprintf(out, "  %s\n", file)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for transcript files")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Transcription model to use")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "Transcript formats to produce (txt, srt, vtt, json)")
	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Spoken language hint (BCP 47 tag)")
	return cmd
}

func newExtractAudioCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract-audio <input> <output>",
		Short: "Extract the audio track from a media file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			br := bridge.New(cfg, bridge.WithLogger(ctx.ensureLogger()))
			defer br.Terminate()

			if !ctx.jsonOutput() {
				printer := newProgressPrinter(cmd.OutOrStdout(), interactive())
				br.OnProgress(printer.Update)
				defer printer.Finish()
			}

			outputFile, err := br.ExtractAudio(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"output_file": outputFile})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nWrote audio to %s\n", outputFile)
			return nil
		},
	}
	return cmd
}
