package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/ecss/pkg/fs"
)

const testContentHello = "hello"

func TestAtomicWriteFile_VisibleAfterCommit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

// TestAtomicWriteFile_LeavesPreviousContentOnWriteFailure verifies that an
// AtomicWriter backed by a fault-injecting FS never leaves the destination
// path in a half-written state: the rename only happens after the temp file
// is fully written, so an injected write failure must surface as an error
// with the destination untouched.
func TestAtomicWriteFile_LeavesPreviousContentOnWriteFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	err := os.WriteFile(path, []byte("previous"), 0o600)
	if err != nil {
		t.Fatalf("seed WriteFile: %v", err)
	}

	chaosFS := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{WriteFailRate: 1.0})
	writer := fs.NewAtomicWriter(chaosFS)

	err = writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err == nil {
		t.Fatalf("WriteWithDefaults: expected error, got nil")
	}

	got, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "previous" {
		t.Fatalf("content=%q, want unchanged %q", string(got), "previous")
	}
}
