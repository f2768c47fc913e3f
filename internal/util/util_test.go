// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// STRING HELPERS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"zero max", "hello", 0, ""},
		{"tiny max skips ellipsis", "hello", 2, "he"},
		{"multibyte safe", "héllo wörld", 8, "héllo..."},
		{"empty input", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.input, tt.maxRunes)
			if got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		maxCols  int
	}{
		{"ascii fits", "hello", 10, 10},
		{"ascii truncated", "hello world", 8, 8},
		{"cjk counts double", "日本語テキスト", 6, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWidth(tt.input, tt.maxWidth)
			if w := runewidth.StringWidth(got); w > tt.maxCols {
				t.Errorf("TruncateWidth(%q, %d) = %q with width %d, want <= %d",
					tt.input, tt.maxWidth, got, w, tt.maxCols)
			}
		})
	}
}

// =============================================================================
// ATOMIC WRITE
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.json")

	if err := AtomicWriteFile(path, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("file content = %q, want %q", data, `{"ok":true}`)
	}

	// Overwrite must replace the full content.
	if err := AtomicWriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "v2" {
		t.Errorf("after overwrite content = %q, want %q", data, "v2")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no temp residue)", len(entries))
	}
}
