package handler_test

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"cityalert/internal/config"
	"cityalert/internal/failure"
	"cityalert/internal/gateway/handler"
	"cityalert/internal/incident"
)

var _ = Describe("AlertsHandler", func() {
	var (
		router *gin.Engine
		api    *mockIncidentAPI
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		api = &mockIncidentAPI{}
		h := handler.NewAlertsHandler(api, config.MapConfig{CenterLat: 37.7749, CenterLng: -122.4194, Zoom: 12})
		router = gin.New()
		router.GET("/api/alerts", h.List)
	})

	It("returns incidents with markers for those that have coordinates", func() {
		lat, lng := 37.78, -122.41
		api.incidents = []incident.Incident{
			{ID: 1, Description: "fire", Status: incident.StatusReported, DepartmentClassification: "FIRE", Latitude: &lat, Longitude: &lng},
			{ID: 2, Description: "pothole", Status: incident.StatusResolved, DepartmentClassification: "PUBLIC_WORKS"},
		}

		w := doJSON(router, http.MethodGet, "/api/alerts", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		resp := decode(w)
		Expect(resp["incidents"]).To(HaveLen(2))
		markers := resp["markers"].([]any)
		Expect(markers).To(HaveLen(1))
		marker := markers[0].(map[string]any)
		Expect(marker["color"]).To(Equal("#DC2626"))
		Expect(marker["glyph"]).To(Equal("!"))
		Expect(resp["viewport"].(map[string]any)["zoom"]).To(BeEquivalentTo(15))
	})

	It("returns an empty feed with the configured viewport", func() {
		w := doJSON(router, http.MethodGet, "/api/alerts", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		resp := decode(w)
		Expect(resp["incidents"]).To(BeEmpty())
		Expect(resp["markers"]).To(BeEmpty())
		Expect(resp["viewport"].(map[string]any)["zoom"]).To(BeEquivalentTo(12))
	})

	It("maps an unreachable backend to 503", func() {
		api.listErr = failure.Network("incidentapi.list", errors.New("dial tcp: refused"))
		w := doJSON(router, http.MethodGet, "/api/alerts", nil)
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(decode(w)["kind"]).To(Equal("network"))
	})

	It("maps a backend error to 502", func() {
		api.listErr = failure.Remote("incidentapi.list", 500, "boom")
		w := doJSON(router, http.MethodGet, "/api/alerts", nil)
		Expect(w.Code).To(Equal(http.StatusBadGateway))
	})
})
