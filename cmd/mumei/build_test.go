package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunBuildOnceNoExitSurfacesParserError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atom.mm")
	if err := os.WriteFile(path, []byte("atom noop() {}"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	err := runBuildOnceNoExit(path, "")
	if err == nil {
		t.Fatal("expected an error since no surface parser is wired")
	}
	if !strings.Contains(err.Error(), "no surface parser wired") {
		t.Errorf("expected the unwiredParser error to surface, got %q", err.Error())
	}
}
