// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/util"
)

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// newMarkdownRenderer builds a glamour renderer sized to the viewport.
func newMarkdownRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

// renderTranscript renders the conversation for the viewport. Finalized
// assistant messages go through glamour; the open streaming message is
// shown raw so partial markdown does not flicker.
func (c *Chat) renderTranscript() string {
	var sb strings.Builder

	for _, msg := range c.engine.Conversation().Messages {
		switch msg.Role {
		case model.RoleUser:
			sb.WriteString(c.theme.UserLabel.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(c.theme.MessageBody.Render(msg.Content))
			sb.WriteString("\n\n")

		case model.RoleAssistant:
			if msg.Content == "" && msg.GetDisplayContent() == "" && !msg.Streaming() {
				continue
			}
			sb.WriteString(c.theme.AssistantLabel.Render("Assistant"))
			sb.WriteString("\n")
			sb.WriteString(c.renderAssistant(msg))
			sb.WriteString("\n")

		default:
			// System and tool traffic stays out of the transcript.
		}
	}

	return sb.String()
}

// renderAssistant renders one assistant message body plus its sources.
func (c *Chat) renderAssistant(msg *model.Message) string {
	content := msg.GetDisplayContent()

	var body string
	if msg.Streaming() || c.renderer == nil {
		body = c.theme.MessageBody.Render(content) + "\n"
	} else {
		rendered, err := c.renderer.Render(content)
		if err != nil {
			body = c.theme.MessageBody.Render(content) + "\n"
		} else {
			body = rendered
		}
	}

	if len(msg.SearchResults) > 0 && !msg.Streaming() {
		var sources strings.Builder
		sources.WriteString("Sources:\n")
		for i, r := range msg.SearchResults {
			sources.WriteString(fmt.Sprintf("  [%d] %s\n", i+1, truncateLine(r.URL, c.width-8)))
		}
		body += c.theme.SourceList.Render(sources.String()) + "\n"
	}

	return body
}

// truncateLine clips a line to the display width, rune-width aware.
func truncateLine(s string, width int) string {
	if width < 4 {
		width = 4
	}
	return util.TruncateWidth(s, width)
}
