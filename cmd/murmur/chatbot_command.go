package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/bridge"
)

func newChatbotCommand(ctx *commandContext) *cobra.Command {
	chatbotCmd := &cobra.Command{
		Use:   "chatbot",
		Short: "Search and index transcripts",
	}

	chatbotCmd.AddCommand(newChatbotSearchCommand(ctx))
	chatbotCmd.AddCommand(newChatbotIndexCommand(ctx))

	return chatbotCmd
}

func newChatbotSearchCommand(ctx *commandContext) *cobra.Command {
	var threshold float64
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Chatbot.Threshold
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Chatbot.Limit
			}

			br := bridge.New(cfg, bridge.WithLogger(ctx.ensureLogger()))
			defer br.Terminate()

			query := strings.Join(args, " ")
			results, err := br.ChatbotSearch(cmd.Context(), query, threshold, limit)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matches")
				return nil
			}
			for i, result := range results {
				fmt.Fprintf(out, "%d. [%.2f] %s", i+1, result.Score, result.SourceFile)
				if result.Timestamp != "" {
					fmt.Fprintf(out, " @ %s", result.Timestamp)
				}
				fmt.Fprintf(out, "\n   %s\n", strings.TrimSpace(result.Content))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score (0-1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	return cmd
}

func newChatbotIndexCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "index <transcript>",
		Short: "Index a transcript file for search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			br := bridge.New(cfg, bridge.WithLogger(ctx.ensureLogger()))
			defer br.Terminate()

			result, err := br.ChatbotIndex(cmd.Context(), args[0], string(content))
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s (%d documents total)\n", args[0], result.DocumentCount)
			return nil
		},
	}
}
