package handler

import (
	"context"
	"log/slog"
	"net/http"

	"cityalert/internal/config"
	"cityalert/internal/failure"
	"cityalert/internal/incident"
	"cityalert/internal/mapview"

	"github.com/gin-gonic/gin"
)

// IncidentLister is the read side of the Incident API.
type IncidentLister interface {
	ListIncidents(ctx context.Context) ([]incident.Incident, error)
}

type AlertsHandler struct {
	api IncidentLister
	cfg config.MapConfig
}

func NewAlertsHandler(api IncidentLister, cfg config.MapConfig) *AlertsHandler {
	return &AlertsHandler{api: api, cfg: cfg}
}

type alertsResponse struct {
	Incidents []incident.Incident `json:"incidents"`
	Markers   []mapview.Marker    `json:"markers"`
	Viewport  mapview.Viewport    `json:"viewport"`
}

// List proxies the public incident list and adds the marker model the map
// widget renders.
func (h *AlertsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	incidents, err := h.api.ListIncidents(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list incidents", "error", err)
		status := http.StatusBadGateway
		if failure.Is(err, failure.KindNetwork) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "failed to load incidents", "kind": failure.KindOf(err).String()})
		return
	}

	m := mapview.New(mapview.WithCenter(h.cfg.CenterLat, h.cfg.CenterLng, h.cfg.Zoom))
	if err := m.Initialize(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
		return
	}
	if err := m.UpdateMarkers(incidents); err != nil {
		slog.ErrorContext(ctx, "failed to build markers", "error", err)
	}

	if incidents == nil {
		incidents = []incident.Incident{}
	}
	c.JSON(http.StatusOK, alertsResponse{
		Incidents: incidents,
		Markers:   m.Markers(),
		Viewport:  m.Viewport(),
	})
}
