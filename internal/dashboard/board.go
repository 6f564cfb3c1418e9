package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
	"cityalert/internal/logger"
	"cityalert/internal/mapview"
)

// API is the part of the Incident API the board drives.
type API interface {
	Login(ctx context.Context, key string) (*incidentapi.Department, error)
	ListIncidents(ctx context.Context) ([]incident.Incident, error)
	ListDepartmentIncidents(ctx context.Context, name string, status incident.Status) ([]incident.Incident, error)
	UpdateStatus(ctx context.Context, id int64, update incidentapi.StatusUpdate) (*incident.Incident, error)
	DeleteIncident(ctx context.Context, id int64, cred incidentapi.Credential) error
}

// Board is a logged-in department's view. Every mutation carries the
// department credential and is followed by a re-fetch with the current
// filter.
type Board struct {
	api  API
	dept incidentapi.Department
	key  string
	view mapview.Map

	mu     sync.Mutex
	filter incident.Status
	last   []incident.Incident
}

type BoardOption func(*Board)

// WithMap feeds every refreshed list into m.
func WithMap(m mapview.Map) BoardOption {
	return func(b *Board) { b.view = m }
}

// Login exchanges key for a department and returns its board. Nothing is
// fetched until Incidents or Refresh is called.
func Login(ctx context.Context, api API, key string, opts ...BoardOption) (*Board, error) {
	dept, err := api.Login(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("department login: %w", err)
	}
	b := &Board{api: api, dept: *dept, key: key}
	for _, opt := range opts {
		opt(b)
	}
	slog.InfoContext(b.logContext(ctx), "department logged in", "department_id", dept.ID)
	return b, nil
}

func (b *Board) Department() incidentapi.Department { return b.dept }

func (b *Board) credential() incidentapi.Credential {
	return incidentapi.Credential{Name: b.dept.Name, Key: b.key}
}

// SetFilter limits later fetches to one status; empty means all.
func (b *Board) SetFilter(status incident.Status) {
	b.mu.Lock()
	b.filter = status
	b.mu.Unlock()
}

// Incidents sets the status filter and fetches.
func (b *Board) Incidents(ctx context.Context, status incident.Status) ([]incident.Incident, error) {
	b.SetFilter(status)
	return b.Refresh(ctx)
}

// Refresh fetches with the current filter.
func (b *Board) Refresh(ctx context.Context) ([]incident.Incident, error) {
	b.mu.Lock()
	filter := b.filter
	b.mu.Unlock()

	list, err := b.api.ListDepartmentIncidents(ctx, b.dept.Name, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s incidents: %w", b.dept.Name, err)
	}

	b.mu.Lock()
	b.last = list
	b.mu.Unlock()

	if b.view != nil {
		if err := b.view.UpdateMarkers(list); err != nil {
			slog.WarnContext(b.logContext(ctx), "map update failed", "error", err)
		}
	}
	return list, nil
}

// Last returns the list from the latest successful fetch.
func (b *Board) Last() []incident.Incident {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]incident.Incident(nil), b.last...)
}

func (b *Board) SetStatus(ctx context.Context, id int64, status incident.Status) ([]incident.Incident, error) {
	ctx = b.logContext(ctx)
	cred := b.credential()
	_, err := b.api.UpdateStatus(ctx, id, incidentapi.StatusUpdate{
		Status:         status,
		DepartmentName: cred.Name,
		DepartmentKey:  cred.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("update incident %d: %w", id, err)
	}
	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IncidentID: logger.Ptr(id)}),
		"incident status updated", "status", string(status))
	return b.Refresh(ctx)
}

func (b *Board) Delete(ctx context.Context, id int64) ([]incident.Incident, error) {
	ctx = b.logContext(ctx)
	if err := b.api.DeleteIncident(ctx, id, b.credential()); err != nil {
		return nil, fmt.Errorf("delete incident %d: %w", id, err)
	}
	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IncidentID: logger.Ptr(id)}), "incident deleted")
	return b.Refresh(ctx)
}

// Poller returns a poller that refreshes this board every
// DepartmentInterval.
func (b *Board) Poller(onUpdate func([]incident.Incident), onError func(error)) *Poller {
	return &Poller{
		Name:     "department:" + b.dept.Name,
		Interval: DepartmentInterval,
		Fetch:    b.Refresh,
		OnUpdate: onUpdate,
		OnError:  onError,
	}
}

// PublicPoller polls the full incident list every PublicInterval and feeds
// the map when one is given.
func PublicPoller(api API, m mapview.Map, onUpdate func([]incident.Incident), onError func(error)) *Poller {
	return &Poller{
		Name:     "public",
		Interval: PublicInterval,
		Fetch:    api.ListIncidents,
		OnUpdate: func(list []incident.Incident) {
			if m != nil {
				if err := m.UpdateMarkers(list); err != nil {
					slog.Warn("map update failed", "error", err)
				}
			}
			if onUpdate != nil {
				onUpdate(list)
			}
		},
		OnError: onError,
	}
}

func (b *Board) logContext(ctx context.Context) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Department: logger.Ptr(b.dept.Name),
		Component:  "cityalert.dashboard.board",
	})
}
