package handler_test

import (
	"context"
	"sync"

	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
)

type mockIncidentAPI struct {
	mu        sync.Mutex
	created   []incidentapi.CreateRequest
	createFn  func(req incidentapi.CreateRequest) (*incident.Incident, error)
	incidents []incident.Incident
	listErr   error
}

func (m *mockIncidentAPI) CreateIncident(_ context.Context, req incidentapi.CreateRequest) (*incident.Incident, error) {
	m.mu.Lock()
	m.created = append(m.created, req)
	fn := m.createFn
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &incident.Incident{ID: 101, Description: req.Description, Location: req.Location, Status: incident.StatusReported}, nil
}

func (m *mockIncidentAPI) ListIncidents(context.Context) ([]incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.incidents, nil
}

func (m *mockIncidentAPI) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}
