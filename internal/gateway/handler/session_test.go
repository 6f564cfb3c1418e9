package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"cityalert/internal/config"
	"cityalert/internal/failure"
	"cityalert/internal/gateway/handler"
	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
	"cityalert/internal/intake"
	"cityalert/internal/llm"
	"cityalert/internal/session"
)

const summaryReply = "Okay, so I have that there is a fallen tree at Oak Ave and 3rd. This will be classified under PUBLIC_WORKS. Is this information correct and complete?\nDEPARTMENT_CLASSIFICATION: [PUBLIC_WORKS]"

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
	return resp
}

func lastTurn(resp map[string]any) string {
	turns := resp["turns"].([]any)
	Expect(turns).NotTo(BeEmpty())
	return turns[len(turns)-1].(map[string]any)["content"].(string)
}

func newSessionRouter(chat *llm.FakeClient, api *mockIncidentAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := session.NewStore(config.SessionConfig{MaxSessions: 8, TTL: time.Minute}, func(id string) *intake.Engine {
		return intake.New(chat, api, intake.WithSessionID(id))
	})
	h := handler.NewSessionHandler(store)

	router := gin.New()
	s := router.Group("/api/sessions")
	s.POST("", h.Create)
	s.GET("/:id", h.Get)
	s.DELETE("/:id", h.Delete)
	s.POST("/:id/turns", h.Turn)
	s.POST("/:id/image", h.AttachImage)
	s.DELETE("/:id/image", h.DetachImage)
	s.POST("/:id/reset", h.Reset)
	s.GET("/:id/ws", h.Chat)
	return router
}

var _ = Describe("SessionHandler", func() {
	var (
		router *gin.Engine
		chat   *llm.FakeClient
		api    *mockIncidentAPI
		id     string
	)

	BeforeEach(func() {
		chat = llm.NewFakeClient()
		api = &mockIncidentAPI{}
		router = newSessionRouter(chat, api)

		w := doJSON(router, http.MethodPost, "/api/sessions", nil)
		Expect(w.Code).To(Equal(http.StatusCreated))
		resp := decode(w)
		id = resp["session_id"].(string)
		Expect(resp["phase"]).To(Equal("awaiting_description"))
		Expect(lastTurn(resp)).To(ContainSubstring("Please tell me what happened"))
	})

	Describe("Get", func() {
		It("returns the transcript and phase", func() {
			w := doJSON(router, http.MethodGet, "/api/sessions/"+id, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["id"]).To(Equal(id))
			Expect(resp["transcript"]).To(HaveLen(1))
		})

		It("returns 404 for an unknown session", func() {
			w := doJSON(router, http.MethodGet, "/api/sessions/nope", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Turn", func() {
		It("forwards the message and reports the new phase", func() {
			chat.Push("Thank you. What is the location of the incident?")
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "a tree fell on the road"})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["phase"]).To(Equal("awaiting_location"))
			Expect(resp["draft"].(map[string]any)["description"]).To(Equal("a tree fell on the road"))
		})

		It("rejects an empty body", func() {
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "  "})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(chat.CallCount()).To(Equal(0))
		})

		It("rejects a malformed data URL", func() {
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"image": "data:text/plain;base64,aGk="})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("surfaces a chat failure as an apology with the error kind", func() {
			chat.PushError(failure.Network("llm.proxy", errors.New("connection refused")))
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "help"})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["error"].(map[string]any)["kind"]).To(Equal("network"))
			Expect(resp["phase"]).To(Equal("awaiting_description"))
		})

		It("runs a report through to submission", func() {
			chat.Push(summaryReply)
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "a tree is blocking Oak Ave"})
			Expect(decode(w)["phase"]).To(Equal("awaiting_summary_confirmation"))

			w = doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "yes"})
			Expect(decode(w)["phase"]).To(Equal("awaiting_submit_confirmation"))

			w = doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "yes"})
			resp := decode(w)
			Expect(resp["outcome"]).To(Equal("submitted"))
			Expect(resp["incident"].(map[string]any)["id"]).To(BeEquivalentTo(101))
			Expect(resp["phase"]).To(Equal("awaiting_description"))
			Expect(api.createdCount()).To(Equal(1))
			Expect(api.created[0].DepartmentClassification).To(Equal("PUBLIC_WORKS"))
		})

		It("offers choices on a duplicate", func() {
			api.createFn = func(incidentapi.CreateRequest) (*incident.Incident, error) {
				return nil, &incidentapi.DuplicateError{
					Message:  "Similar incident already reported",
					Existing: &incident.Incident{ID: 5, Description: "fallen tree", Location: "Oak Ave", Status: incident.StatusReported},
				}
			}
			chat.Push(summaryReply)
			doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "tree down"})
			doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "yes"})
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "yes"})

			resp := decode(w)
			Expect(resp["outcome"]).To(Equal("duplicate"))
			Expect(resp["choices"]).To(ConsistOf("view_alerts", "restart"))
			Expect(resp["error"].(map[string]any)["kind"]).To(Equal("conflict"))
			Expect(lastTurn(resp)).To(ContainSubstring("fallen tree"))
		})
	})

	Describe("Image", func() {
		It("attaches and detaches without moving the phase", func() {
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/image", map[string]string{"image": "data:image/png;base64,iVBORw0KGgo="})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			img := resp["draft"].(map[string]any)["image"].(map[string]any)
			Expect(img["state"]).To(Equal("attached"))
			Expect(img["ref"]).To(HavePrefix("image_attached_"))

			w = doJSON(router, http.MethodDelete, "/api/sessions/"+id+"/image", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			img = decode(w)["draft"].(map[string]any)["image"].(map[string]any)
			Expect(img["state"]).To(Equal("declined"))
		})

		It("requires an image", func() {
			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/image", map[string]string{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Reset and Delete", func() {
		It("resets to a fresh greeting", func() {
			chat.Push("Thank you. What is the location of the incident?")
			doJSON(router, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "pothole"})

			w := doJSON(router, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
			resp := decode(w)
			Expect(resp["phase"]).To(Equal("awaiting_description"))
			Expect(resp["draft"].(map[string]any)["description"]).To(BeEmpty())
		})

		It("deletes the session", func() {
			Expect(doJSON(router, http.MethodDelete, "/api/sessions/"+id, nil).Code).To(Equal(http.StatusNoContent))
			Expect(doJSON(router, http.MethodGet, "/api/sessions/"+id, nil).Code).To(Equal(http.StatusNotFound))
		})
	})
})
