package testsupport

import (
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and a runnable worker script stub.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Worker.Python = "/bin/sh"
	cfg.Worker.Script = WriteWorkerScript(t, base, EchoSuccessScript)

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxConcurrent overrides the batch concurrency limit.
func WithMaxConcurrent(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Batch.MaxConcurrent = limit
	}
}

// WithWorkerScript points the config at a specific worker script.
func WithWorkerScript(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.Script = path
	}
}
