// Package health runs a periodic reachability probe against the model
// server and logs state transitions. It is purely observational: API
// handlers always re-probe on demand rather than reading monitor state.
package health

import (
	"context"
	"log/slog"
	"time"
)

// Prober is the probe surface the monitor needs from the Ollama client.
type Prober interface {
	IsRunning(ctx context.Context) bool
	BaseURL() string
}

// Monitor probes the model server at a fixed interval.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Monitor. A non-positive interval falls back to one minute.
func New(prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{prober: prober, interval: interval, logger: logger}
}

// Run probes until ctx is done, logging only up/down transitions so a
// stable server stays quiet in the logs. The first probe always logs.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	known := false
	up := false
	for {
		now := m.prober.IsRunning(ctx)
		if !known || now != up {
			if now {
				m.logger.Info("model server reachable", "base_url", m.prober.BaseURL())
			} else {
				m.logger.Warn("model server unreachable", "base_url", m.prober.BaseURL())
			}
		}
		known, up = true, now

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
