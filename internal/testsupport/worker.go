package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// EchoSuccessScript is a shell stand-in for the worker process: it reads one
// request line and answers with a successful envelope.
const EchoSuccessScript = `read line
printf '{"success": true, "data": {"output_files": ["/tmp/out.txt"], "duration": 1.0, "language": "en", "model_used": "base"}}\n'
`

// WriteWorkerScript writes a fake worker script into dir and returns its
// path. The script body is interpreted by /bin/sh, so configs using it must
// set the interpreter accordingly.
func WriteWorkerScript(t testing.TB, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write worker script: %v", err)
	}
	return path
}

// WriteFile creates path with the given contents, creating parent
// directories as needed.
func WriteFile(t testing.TB, path string, contents []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
