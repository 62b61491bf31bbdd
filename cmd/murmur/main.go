package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"murmur/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints the failure with a recovery hint when one applies and
// returns the process exit code. Setup problems (missing dependencies, bad
// configuration) exit with 2 to distinguish them from task failures.
func reportError(w io.Writer, err error) int {
	if errors.Is(err, context.Canceled) {
		return 1
	}
	details := services.Details(err)
	fmt.Fprintf(w, "Error: %s\n", details.Message)
	if details.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", details.Hint)
	}
	if services.IsSetupError(err) {
		return 2
	}
	return 1
}
