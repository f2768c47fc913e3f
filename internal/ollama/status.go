// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"sync/atomic"
)

// ModelStatus describes the readiness of the model server and active
// model. It is always derived from live state, never stored.
type ModelStatus int

const (
	// StatusOffline means the Ollama server is unreachable.
	StatusOffline ModelStatus = iota

	// StatusLoading means a model warm-up or switch is in flight.
	StatusLoading

	// StatusReady means the server is reachable and no load is pending.
	StatusReady
)

// String returns the status label.
func (s ModelStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// StatusMonitor derives the current model status from the client and any
// warm-ups routed through it. Safe for concurrent use.
type StatusMonitor struct {
	client  *Client
	warming atomic.Int32
}

// NewStatusMonitor creates a monitor over the given client.
func NewStatusMonitor(client *Client) *StatusMonitor {
	return &StatusMonitor{client: client}
}

// Status reports the current derived status.
func (m *StatusMonitor) Status(ctx context.Context) ModelStatus {
	if err := m.client.CheckRunning(ctx); err != nil {
		return StatusOffline
	}
	if m.warming.Load() > 0 {
		return StatusLoading
	}
	return StatusReady
}

// WarmUp loads the model while reporting StatusLoading for the duration.
func (m *StatusMonitor) WarmUp(ctx context.Context, model string) error {
	m.warming.Add(1)
	defer m.warming.Add(-1)
	return m.client.WarmUp(ctx, model)
}
