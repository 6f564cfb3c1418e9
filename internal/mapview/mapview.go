// Package mapview keeps the marker model behind an incident map. Rendering
// belongs to whatever front-end draws it; this package decides where the
// markers go, what they look like and where the viewport sits.
package mapview

import (
	"context"
	"errors"
	"math"
	"sync"

	"cityalert/internal/incident"
)

const (
	DefaultLat  = 37.7749
	DefaultLng  = -122.4194
	DefaultZoom = 12

	// MaxFitZoom keeps a single marker from zooming to street level.
	MaxFitZoom = 15
)

var ErrNotInitialized = errors.New("mapview: map not initialized")

// Map is the display adapter the alerts view and dashboard drive.
type Map interface {
	Initialize(ctx context.Context) error
	UpdateMarkers(incidents []incident.Incident) error
	SetCenter(lat, lng float64, zoom int) error
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Marker struct {
	IncidentID  int64           `json:"incident_id"`
	Position    LatLng          `json:"position"`
	Title       string          `json:"title"`
	Color       string          `json:"color"`
	Glyph       string          `json:"glyph"`
	Status      incident.Status `json:"status"`
	Departments string          `json:"departments"`
	Location    string          `json:"location"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Viewport is the centre and zoom the widget should show.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
}

type Option func(*IncidentMap)

func WithCenter(lat, lng float64, zoom int) Option {
	return func(m *IncidentMap) {
		m.view = Viewport{Center: LatLng{lat, lng}, Zoom: zoom}
	}
}

// IncidentMap implements Map as an in-memory marker model. It is safe for
// concurrent use; pollers update it while handlers read it.
type IncidentMap struct {
	mu      sync.RWMutex
	ready   bool
	view    Viewport
	markers []Marker
}

func New(opts ...Option) *IncidentMap {
	m := &IncidentMap{view: Viewport{Center: LatLng{DefaultLat, DefaultLng}, Zoom: DefaultZoom}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *IncidentMap) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return nil
}

// UpdateMarkers replaces every marker. Incidents without coordinates are
// skipped; when any remain the viewport is fitted around them.
func (m *IncidentMap) UpdateMarkers(incidents []incident.Incident) error {
	markers := make([]Marker, 0, len(incidents))
	for _, in := range incidents {
		if mk, ok := MarkerFor(in); ok {
			markers = append(markers, mk)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotInitialized
	}
	m.markers = markers
	if len(markers) > 0 {
		m.view = fitBounds(markers)
	}
	return nil
}

// SetCenter moves the viewport. A zoom of 0 keeps the current zoom.
func (m *IncidentMap) SetCenter(lat, lng float64, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotInitialized
	}
	m.view.Center = LatLng{lat, lng}
	if zoom > 0 {
		m.view.Zoom = zoom
	}
	return nil
}

func (m *IncidentMap) Markers() []Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Marker, len(m.markers))
	copy(out, m.markers)
	return out
}

func (m *IncidentMap) Viewport() Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// MarkerFor builds the marker for one incident, or reports false when the
// incident has no usable coordinates.
func MarkerFor(in incident.Incident) (Marker, bool) {
	if !in.HasCoordinates() {
		return Marker{}, false
	}
	lat, lng := *in.Latitude, *in.Longitude
	if math.IsNaN(lat) || math.IsNaN(lng) || (lat == 0 && lng == 0) {
		return Marker{}, false
	}
	mk := Marker{
		IncidentID:  in.ID,
		Position:    LatLng{lat, lng},
		Title:       in.Description,
		Color:       Color(in),
		Glyph:       Glyph(in.Status),
		Status:      in.Status,
		Departments: in.DepartmentClassification,
		Location:    in.Location,
	}
	if in.ImageURL != nil {
		mk.ImageURL = *in.ImageURL
	}
	return mk, true
}

// Color picks the status colour, overridden by the first matching
// department among FIRE, MEDICAL and POLICE.
func Color(in incident.Incident) string {
	color := "#6B7280"
	switch in.Status {
	case incident.StatusReported:
		color = "#EF4444"
	case incident.StatusInProgress:
		color = "#F59E0B"
	case incident.StatusResolved:
		color = "#10B981"
	}

	depts := in.Departments()
	switch {
	case depts.Contains(incident.Fire):
		color = "#DC2626"
	case depts.Contains(incident.Medical):
		color = "#7C3AED"
	case depts.Contains(incident.Police):
		color = "#2563EB"
	}
	return color
}

func Glyph(s incident.Status) string {
	switch s {
	case incident.StatusReported:
		return "!"
	case incident.StatusInProgress:
		return "⚠"
	default:
		return "✓"
	}
}

// fitBounds centres on the markers' bounding box and picks the largest zoom
// at which the box still fits a 256px world tile, capped at MaxFitZoom.
func fitBounds(markers []Marker) Viewport {
	minLat, maxLat := markers[0].Position.Lat, markers[0].Position.Lat
	minLng, maxLng := markers[0].Position.Lng, markers[0].Position.Lng
	for _, mk := range markers[1:] {
		minLat = math.Min(minLat, mk.Position.Lat)
		maxLat = math.Max(maxLat, mk.Position.Lat)
		minLng = math.Min(minLng, mk.Position.Lng)
		maxLng = math.Max(maxLng, mk.Position.Lng)
	}

	span := math.Max(maxLat-minLat, maxLng-minLng)
	zoom := MaxFitZoom
	if span > 0 {
		zoom = int(math.Floor(math.Log2(360 / span)))
		zoom = max(0, min(zoom, MaxFitZoom))
	}
	return Viewport{
		Center: LatLng{(minLat + maxLat) / 2, (minLng + maxLng) / 2},
		Zoom:   zoom,
	}
}
