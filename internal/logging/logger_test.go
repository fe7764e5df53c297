package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeRejectsBadLevel(t *testing.T) {
	if err := Initialize("loud", "json", ""); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestGetIsCachedPerCategory(t *testing.T) {
	if err := Initialize("info", "json", ""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	a := Get(CategoryStore)
	b := Get(CategoryStore)
	if a != b {
		t.Error("expected the same logger instance per category")
	}
}

func TestLogToFileCarriesCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepbot.log")
	if err := Initialize("debug", "json", path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Store("stored %d rows", 3)
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"cat":"store"`) {
		t.Errorf("log line missing category field: %s", data)
	}
	if !strings.Contains(string(data), "stored 3 rows") {
		t.Errorf("log line missing message: %s", data)
	}
}
