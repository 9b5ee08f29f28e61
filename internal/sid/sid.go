// Package sid computes stable identifiers for source positions, used to
// give a errs.Report a node identity that survives unrelated edits
// elsewhere in the file (unlike a raw line/column pair, which shifts
// whenever code above it grows or shrinks).
package sid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// SID is a stable identifier derived from a canonicalized file path, a
// source position, and a report kind (phase/code pair).
type SID string

// New hashes a canonicalized path together with line, column, and kind
// into a short, stable identifier.
func New(path string, line, column int, kind string) SID {
	parts := []string{
		canonicalizePath(path),
		fmt.Sprintf("%d", line),
		fmt.Sprintf("%d", column),
		kind,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return SID(hex.EncodeToString(sum[:])[:16])
}

// canonicalizePath normalizes a file path so the same source location
// hashes identically across machines and invocations.
func canonicalizePath(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	if isCaseInsensitive() {
		path = strings.ToLower(path)
	}
	return filepath.ToSlash(path)
}

func isCaseInsensitive() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
