package testsupport

import (
	"context"
	"testing"

	"murmur/internal/batch"
	"murmur/internal/config"
)

// MustOpenStore opens a batch.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *batch.Store {
	t.Helper()

	store, err := batch.Open(cfg)
	if err != nil {
		t.Fatalf("batch.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask adds a pending task to the store and returns it.
func NewTask(t testing.TB, store *batch.Store, inputFile, outputDir string) *batch.Task {
	t.Helper()

	task := batch.NewTask(inputFile, outputDir, batch.Options{})
	if err := store.Add(context.Background(), task); err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return task
}
