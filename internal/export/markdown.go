// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/search"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations as a role-labelled transcript.
type MarkdownExporter struct{}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.GetTitle()))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", conv.CreatedAt.Format("January 2, 2006 15:04")))
	if conv.Model != "" {
		sb.WriteString(fmt.Sprintf("**Model:** %s\n", conv.Model))
	}
	sb.WriteString("\n---\n\n")

	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleTool:
			// Tool output can be long; fold it so the transcript stays
			// readable.
			sb.WriteString("<details>\n")
			sb.WriteString(fmt.Sprintf("<summary>Tool: %s</summary>\n\n", msg.ToolName))
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n</details>\n\n")
		case model.RoleSystem:
			continue
		default:
			if msg.Content == "" && msg.HasToolCalls() {
				continue
			}
			sb.WriteString(fmt.Sprintf("## %s\n\n", roleHeading(msg.Role)))
			sb.WriteString(msg.GetDisplayContent())
			sb.WriteString("\n\n")
			if len(msg.SearchResults) > 0 {
				sb.WriteString(formatSources(msg.SearchResults))
			}
		}
	}

	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported %s*\n", time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func roleHeading(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	default:
		return role.DisplayName()
	}
}

// formatSources renders a message's search results as a numbered source
// list matching the [n] citations in the content.
func formatSources(results []search.Result) string {
	var sb strings.Builder
	sb.WriteString("**Sources:**\n\n")
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. [%s](%s)\n", i+1, r.Title, r.URL))
	}
	sb.WriteString("\n")
	return sb.String()
}
