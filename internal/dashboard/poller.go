// Package dashboard keeps the public alerts list and the department board
// fresh by polling the Incident API.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"cityalert/internal/incident"
	"cityalert/internal/logger"
)

const (
	PublicInterval     = 30 * time.Second
	DepartmentInterval = 60 * time.Second
)

// FetchFunc loads the current incident list.
type FetchFunc func(ctx context.Context) ([]incident.Incident, error)

// Poller fetches once immediately, then on every tick until ctx ends. A
// failed fetch is reported and polling carries on.
type Poller struct {
	Name     string
	Interval time.Duration
	Fetch    FetchFunc
	OnUpdate func([]incident.Incident)
	OnError  func(error)
}

// Run blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "cityalert.dashboard.poller"})
	interval := p.Interval
	if interval <= 0 {
		interval = PublicInterval
	}

	slog.InfoContext(ctx, "poller started", "name", p.Name, "interval", interval)
	p.pollOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "poller stopping", "name", p.Name)
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	incidents, err := p.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.WarnContext(ctx, "poll failed", "name", p.Name, "error", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}
	slog.DebugContext(ctx, "poll complete", "name", p.Name, "count", len(incidents))
	if p.OnUpdate != nil {
		p.OnUpdate(incidents)
	}
}
