package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"murmur/internal/batch"
	"murmur/internal/config"
	"murmur/internal/deps"
	"murmur/internal/scheduler"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Queue and run transcription batches",
	}

	batchCmd.AddCommand(newBatchAddCommand(ctx))
	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchShowCommand(ctx))
	batchCmd.AddCommand(newBatchStatusCommand(ctx))
	batchCmd.AddCommand(newBatchRunCommand(ctx))
	batchCmd.AddCommand(newBatchRetryCommand(ctx))
	batchCmd.AddCommand(newBatchRemoveCommand(ctx))
	batchCmd.AddCommand(newBatchClearCommand(ctx))
	batchCmd.AddCommand(newBatchCancelCommand(ctx))

	return batchCmd
}

// withStore opens the task store for one command invocation.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *batch.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := batch.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func newBatchAddCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var model string
	var formats []string
	var languageFlag string

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Add media files to the task queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				opts := batch.Options{
					Model:    strings.TrimSpace(model),
					Formats:  formats,
					Language: strings.TrimSpace(languageFlag),
				}
				if opts.Model == "" {
					opts.Model = cfg.Transcription.Model
				}
				if len(opts.Formats) == 0 {
					opts.Formats = cfg.Transcription.Formats
				}
				if opts.Language == "" {
					opts.Language = cfg.Transcription.Language
				}
				dir := strings.TrimSpace(outputDir)
				if dir == "" {
					dir = cfg.Paths.OutputDir
				}

				added := make([]*batch.Task, 0, len(args))
				for _, input := range args {
					absolute, err := filepath.Abs(input)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", input, err)
					}
					task := batch.NewTask(absolute, dir, opts)
					if err := store.Add(cmd.Context(), task); err != nil {
						return err
					}
					added = append(added, task)
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, added)
				}
				out := cmd.OutOrStdout()
				for _, task := range added {
					fmt.Fprintf(out, "Queued %s (%s)\n", task.InputFile, shortID(task.ID))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for transcript files")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Transcription model to use")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "Transcript formats to produce")
	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Spoken language hint")
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				statuses := make([]batch.Status, 0, len(statusFilters))
				for _, raw := range statusFilters {
					if !batch.ValidStatus(raw) {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, batch.Status(strings.ToLower(strings.TrimSpace(raw))))
				}

				tasks, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, tasks)
				}

				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						shortID(task.ID),
						colorizeStatus(string(task.Status)),
						fmt.Sprintf("%3.0f%%", task.Progress*100),
						task.InputFile,
						task.ErrorCode,
					})
				}
				table := renderTable(
					[]string{"ID", "Status", "Progress", "Input", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by task status (pending, running, completed, failed, cancelled)")
	return cmd
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				task, err := resolveTask(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, task)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", task.ID)
				fmt.Fprintf(out, "Input:     %s\n", task.InputFile)
				fmt.Fprintf(out, "Output:    %s\n", task.OutputDir)
				fmt.Fprintf(out, "Model:     %s\n", task.Options.Model)
				fmt.Fprintf(out, "Formats:   %s\n", strings.Join(task.Options.Formats, ", "))
				if task.Options.Language != "" {
					fmt.Fprintf(out, "Language:  %s\n", task.Options.Language)
				}
				fmt.Fprintf(out, "Status:    %s\n", task.Status)
				fmt.Fprintf(out, "Progress:  %.0f%%\n", task.Progress*100)
				fmt.Fprintf(out, "Created:   %s\n", task.CreatedAt.Local().Format(time.RFC1123))
				if task.StartedAt != nil {
					fmt.Fprintf(out, "Started:   %s\n", task.StartedAt.Local().Format(time.RFC1123))
				}
				if task.CompletedAt != nil {
					fmt.Fprintf(out, "Finished:  %s\n", task.CompletedAt.Local().Format(time.RFC1123))
				}
				if task.ErrorMsg != "" {
					fmt.Fprintf(out, "Error:     %s (%s)\n", task.ErrorMsg, task.ErrorCode)
				}
				return nil
			})
		},
	}
}

func newBatchStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, summary)
				}

				out := cmd.OutOrStdout()
				if summary.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := [][]string{
					{colorizeStatus("pending"), fmt.Sprintf("%d", summary.Pending)},
					{colorizeStatus("running"), fmt.Sprintf("%d", summary.Running)},
					{colorizeStatus("completed"), fmt.Sprintf("%d", summary.Completed)},
					{colorizeStatus("failed"), fmt.Sprintf("%d", summary.Failed)},
					{colorizeStatus("cancelled"), fmt.Sprintf("%d", summary.Cancelled)},
					{"total", fmt.Sprintf("%d", summary.Total)},
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newBatchRunCommand(ctx *commandContext) *cobra.Command {
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every pending task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				if err := deps.Verify(cfg); err != nil {
					return err
				}
				if cmd.Flags().Changed("max-concurrent") {
					cfg.Batch.MaxConcurrent = maxConcurrent
				}

				// One batch run per task database at a time.
				lock := flock.New(filepath.Join(cfg.Paths.LogDir, "batch.lock"))
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire batch lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another batch run is already active (lock at %s)", lock.Path())
				}
				defer lock.Unlock()

				// Recover tasks left running by an unclean shutdown.
				if _, err := store.ResetRunning(cmd.Context()); err != nil {
					return err
				}

				sched := scheduler.New(cfg, store, scheduler.WithLogger(ctx.ensureLogger()))

				count, err := sched.CanStart(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if count == 0 {
					fmt.Fprintln(out, "No pending tasks")
					return nil
				}

				if !ctx.jsonOutput() {
					fmt.Fprintf(out, "Running %d task(s), up to %d at a time\n", count, cfg.Batch.MaxConcurrent)
					attachRunReporter(sched, out, count)
				}

				summary, err := sched.ProcessBatch(cmd.Context())
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, summary)
				}
				fmt.Fprintf(out, "Batch finished: %d completed, %d failed, %d cancelled\n",
					summary.Completed, summary.Failed, summary.Cancelled)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Override the concurrent worker limit")
	return cmd
}

// attachRunReporter prints per-task lifecycle lines during a batch run.
func attachRunReporter(sched *scheduler.Scheduler, out io.Writer, total int) {
	var mu sync.Mutex
	positions := make(map[string]int)
	reported := make(map[string]batch.Status)

	sched.OnTaskProgress(func(task *batch.Task) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := positions[task.ID]; !ok {
			positions[task.ID] = len(positions) + 1
		}
		if reported[task.ID] == task.Status {
			return
		}
		reported[task.ID] = task.Status
		prefix := fmt.Sprintf("[%d/%d]", positions[task.ID], total)
		overall := fmt.Sprintf("batch %3.0f%%", sched.Progress()*100)
		switch task.Status {
		case batch.StatusRunning:
			fmt.Fprintf(out, "%s started %s\n", prefix, task.InputFile)
		case batch.StatusCompleted:
			fmt.Fprintf(out, "%s completed %s (%s)\n", prefix, task.InputFile, overall)
		case batch.StatusFailed:
			fmt.Fprintf(out, "%s failed %s: %s (%s, %s)\n", prefix, task.InputFile, task.ErrorMsg, task.ErrorCode, overall)
		case batch.StatusCancelled:
			fmt.Fprintf(out, "%s cancelled %s (%s)\n", prefix, task.InputFile, overall)
		}
	})
}

func newBatchRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]...",
		Short: "Reset failed tasks to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					task, err := resolveTask(cmd.Context(), store, arg)
					if err != nil {
						return err
					}
					ids = append(ids, task.ID)
				}

				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"retried": count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d task(s) to pending\n", count)
				return nil
			})
		},
	}
}

func newBatchRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a task from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				task, err := resolveTask(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if task.Status == batch.StatusRunning {
					return fmt.Errorf("task %s is running; cancel the batch first", shortID(task.ID))
				}
				removed, err := store.Remove(cmd.Context(), task.ID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]bool{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", task.InputFile)
				return nil
			})
		},
	}
}

func newBatchClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				var count int64
				var err error
				if all {
					count, err = store.Clear(cmd.Context())
				} else {
					count, err = store.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"cleared": count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d task(s)\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every task, not just finished ones")
	return cmd
}

func newBatchCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every pending task",
		Long: "Marks all pending tasks as cancelled so the next run skips them.\n" +
			"An active batch run stops admitting new work; tasks already in\n" +
			"flight run to completion (interrupt the run to terminate them).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *batch.Store) error {
				pending, err := store.List(cmd.Context(), batch.StatusPending)
				if err != nil {
					return err
				}
				for _, task := range pending {
					task.SetCancelled()
					if err := store.Update(cmd.Context(), task); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"cancelled": len(pending)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d pending task(s)\n", len(pending))
				return nil
			})
		},
	}
}

// resolveTask accepts a full task id or an unambiguous prefix.
func resolveTask(ctx context.Context, store *batch.Store, ref string) (*batch.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("task id required")
	}
	if task, err := store.GetByID(ctx, ref); err == nil {
		return task, nil
	}

	tasks, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var match *batch.Task
	for _, task := range tasks {
		if strings.HasPrefix(task.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("task id %q is ambiguous", ref)
			}
			match = task
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task matches %q", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
