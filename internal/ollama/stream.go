// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader decodes newline-delimited JSON frames from a streaming
// response body.
type StreamReader struct {
	reader      *bufio.Reader
	accumulator strings.Builder
	chunkCount  int
	model       string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
	}
}

// Process reads the stream and calls the callback for each chunk, in
// receive order. Blocks until the done frame, stream end, or context
// cancellation.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readChunk()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			if chunk != nil {
				callback(*chunk)
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readChunk reads and parses a single line. Malformed lines are logged
// and skipped (nil chunk, nil error); they must never abort the stream.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Process the final unterminated line before surfacing EOF.
		if len(line) == 0 {
			return nil, err
		}
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var frame struct {
		Model     string    `json:"model"`
		CreatedAt time.Time `json:"created_at"`
		Message   struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		Done               bool   `json:"done"`
		DoneReason         string `json:"done_reason,omitempty"`
		TotalDuration      int64  `json:"total_duration,omitempty"`
		LoadDuration       int64  `json:"load_duration,omitempty"`
		PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
		PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
		EvalCount          int    `json:"eval_count,omitempty"`
		EvalDuration       int64  `json:"eval_duration,omitempty"`
	}
	if err := json.Unmarshal([]byte(trimmed), &frame); err != nil {
		log.Printf("STREAM_SKIP | malformed frame: %v", err)
		return nil, nil
	}

	if frame.Model != "" {
		s.model = frame.Model
	}

	content := frame.Message.Content
	if content != "" {
		s.accumulator.WriteString(content)
		s.chunkCount++
	}

	chunk := &StreamChunk{
		Content:    content,
		ToolCalls:  frame.Message.ToolCalls,
		Done:       frame.Done,
		DoneReason: frame.DoneReason,
		Model:      s.model,
	}

	if frame.Done {
		chunk.TotalDuration = time.Duration(frame.TotalDuration)
		chunk.LoadDuration = time.Duration(frame.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(frame.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(frame.EvalDuration)
		chunk.PromptTokens = frame.PromptEvalCount
		chunk.CompletionTokens = frame.EvalCount
	}

	return chunk, nil
}

// GetAccumulated returns all accumulated content.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// GetChunkCount returns the number of content chunks received.
func (s *StreamReader) GetChunkCount() int {
	return s.chunkCount
}

// GetModel returns the model name observed on the stream.
func (s *StreamReader) GetModel() string {
	return s.model
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds timing statistics collected during streaming.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	PromptTokens     int
	CompletionTokens int

	TTFT            time.Duration
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes final statistics from the terminal chunk.
func (s *StreamStats) Finalize(chunk StreamChunk) {
	s.EndTime = time.Now()
	s.TotalDuration = chunk.TotalDuration
	s.LoadDuration = chunk.LoadDuration
	s.PromptEvalDuration = chunk.PromptEvalDuration
	s.EvalDuration = chunk.EvalDuration
	s.PromptTokens = chunk.PromptTokens
	s.CompletionTokens = chunk.CompletionTokens

	if s.EvalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.EvalDuration.Seconds()
	}
}

// Format returns a compact single-line summary.
func (s *StreamStats) Format() string {
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		s.TotalDuration.Seconds(), s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects streaming chunks and builds statistics.
type StreamAccumulator struct {
	content strings.Builder
	Stats   *StreamStats
	Done    bool
	Err     error
}

// NewStreamAccumulator creates a new accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{Stats: NewStreamStats()}
}

// Add processes a new chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.Err = chunk.Error
		a.Done = true
		return
	}

	if chunk.Content != "" && a.content.Len() == 0 {
		a.Stats.RecordFirstToken()
	}

	a.content.WriteString(chunk.Content)

	if chunk.Done {
		a.Done = true
		a.Stats.Finalize(chunk)
	}
}

// GetContent returns the accumulated content.
func (a *StreamAccumulator) GetContent() string {
	return a.content.String()
}

// GetError returns any error that occurred.
func (a *StreamAccumulator) GetError() error {
	return a.Err
}
