// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations to portable formats.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/convoke/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// ForFormat returns the exporter for a format name ("json" or
// "markdown"/"md").
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONExporter{}, nil
	case "markdown", "md":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// =============================================================================
// FILE EXPORT
// =============================================================================

// ExportToFile exports a conversation into outputDir and returns the
// output file path.
func ExportToFile(conv *model.Conversation, exporter Exporter, outputDir string) (string, error) {
	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.GetTitle()),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)

	outputPath := filepath.Join(outputDir, filename)
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return outputPath, nil
}

// sanitizeFilename removes or replaces characters that are invalid in
// filenames on Windows or Unix.
func sanitizeFilename(s string) string {
	runes := []rune(s)
	if len(runes) > 50 {
		s = string(runes[:50])
	}

	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", " ", "_",
		"\n", "_", "\r", "",
	)
	s = replacer.Replace(s)

	s = strings.Trim(s, "._-")
	if s == "" {
		return "untitled"
	}
	return s
}
