package deps

import (
	"fmt"
	"os"
	"strings"

	"murmur/internal/config"
	"murmur/internal/services"
)

// Requirements lists the external tools murmur needs for the configured
// setup. The Python interpreter and worker script are mandatory; ffmpeg is
// only needed for audio extraction, the worker falls back to direct decoding
// without it.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Python",
			Command:     cfg.Worker.Python,
			Description: "Runs the worker process",
		},
		{
			Name:        "FFmpeg",
			Command:     "ffmpeg",
			Description: "Used by the worker for audio extraction",
			Optional:    true,
		},
	}
}

// CheckScript reports whether the configured worker script exists and is
// readable. Scripts are files, not binaries, so PATH lookup does not apply.
func CheckScript(path string) Status {
	status := Status{
		Name:        "Worker script",
		Command:     strings.TrimSpace(path),
		Description: "Entry point handed to the Python interpreter",
	}
	if status.Command == "" {
		status.Detail = "script not configured"
		return status
	}
	info, err := os.Stat(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("script %q not found", status.Command)
		return status
	}
	if info.IsDir() {
		status.Detail = fmt.Sprintf("%q is a directory", status.Command)
		return status
	}
	status.Available = true
	status.Detail = status.Command
	return status
}

// Check evaluates every requirement for the given configuration.
func Check(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	return append(results, CheckScript(cfg.Worker.Script))
}

// Verify returns an error when any mandatory dependency is missing.
func Verify(cfg *config.Config) error {
	var missing []string
	for _, status := range Check(cfg) {
		if !status.Available && !status.Optional {
			missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrDependency, "deps", "verify",
		"missing required dependencies: "+strings.Join(missing, "; "), nil)
}
