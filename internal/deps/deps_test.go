package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
	"murmur/internal/services"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != present {
		t.Fatalf("expected resolved path %q, got %q", present, results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
}

func TestCheckBinariesEmptyCommand(t *testing.T) {
	results := CheckBinaries([]Requirement{{Name: "Unset"}})
	if results[0].Available {
		t.Fatal("unconfigured command should be unavailable")
	}
	if results[0].Detail != "command not configured" {
		t.Fatalf("unexpected detail: %s", results[0].Detail)
	}
}

func TestCheckScript(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "worker.py")
	if err := os.WriteFile(scriptPath, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	status := CheckScript(scriptPath)
	if !status.Available {
		t.Fatalf("expected script to be available, got detail %q", status.Detail)
	}
	if status.Detail != scriptPath {
		t.Fatalf("expected script path detail, got %q", status.Detail)
	}

	status = CheckScript(filepath.Join(dir, "missing.py"))
	if status.Available {
		t.Fatal("missing script should be unavailable")
	}

	status = CheckScript(dir)
	if status.Available {
		t.Fatal("directory should not count as a script")
	}

	status = CheckScript("   ")
	if status.Available || status.Detail != "script not configured" {
		t.Fatalf("blank path should report unconfigured, got %#v", status)
	}
}

func TestVerifyReportsMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Worker.Python = "clearly-not-present-interpreter"
	cfg.Worker.Script = filepath.Join(dir, "missing.py")

	err := Verify(cfg)
	if err == nil {
		t.Fatal("expected error for missing dependencies")
	}
	if !errors.Is(err, services.ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestVerifyPassesWithStubTools(t *testing.T) {
	dir := t.TempDir()
	python := filepath.Join(dir, "python3")
	if err := os.WriteFile(python, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write interpreter stub: %v", err)
	}
	scriptPath := filepath.Join(dir, "worker.py")
	if err := os.WriteFile(scriptPath, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	cfg := &config.Config{}
	cfg.Worker.Python = python
	cfg.Worker.Script = scriptPath

	if err := Verify(cfg); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
