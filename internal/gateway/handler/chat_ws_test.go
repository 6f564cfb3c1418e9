package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"cityalert/internal/llm"
)

type wsFrame struct {
	Type    string         `json:"type"`
	Reply   map[string]any `json:"reply"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

var _ = Describe("SessionHandler.Chat", func() {
	var (
		srv  *httptest.Server
		chat *llm.FakeClient
		conn *websocket.Conn
	)

	readFrame := func() wsFrame {
		var f wsFrame
		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		Expect(conn.ReadJSON(&f)).To(Succeed())
		return f
	}

	BeforeEach(func() {
		chat = llm.NewFakeClient()
		router := newSessionRouter(chat, &mockIncidentAPI{})
		srv = httptest.NewServer(router)

		req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusCreated))
		id := decode(w)["session_id"].(string)

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
		var err error
		conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
		Expect(err).NotTo(HaveOccurred())

		f := readFrame()
		Expect(f.Type).To(Equal("session"))
		Expect(f.Message).To(Equal(id))
	})

	AfterEach(func() {
		if conn != nil {
			conn.Close()
		}
		srv.Close()
	})

	It("answers ping frames", func() {
		Expect(conn.WriteJSON(map[string]string{"type": "ping"})).To(Succeed())
		Expect(readFrame().Type).To(Equal("pong"))
	})

	It("sends one reply frame per turn", func() {
		chat.Push("Thank you. What is the location of the incident?")
		Expect(conn.WriteJSON(map[string]string{"type": "turn", "text": "streetlight out"})).To(Succeed())

		f := readFrame()
		Expect(f.Type).To(Equal("reply"))
		Expect(f.Reply["phase"]).To(Equal("awaiting_location"))
		Expect(chat.CallCount()).To(Equal(1))
	})

	It("rejects unknown and empty frames without closing", func() {
		Expect(conn.WriteJSON(map[string]string{"type": "dance"})).To(Succeed())
		f := readFrame()
		Expect(f.Type).To(Equal("error"))
		Expect(f.Message).To(ContainSubstring("unsupported type"))

		Expect(conn.WriteJSON(map[string]string{"type": "turn"})).To(Succeed())
		Expect(readFrame().Code).To(Equal("invalid_argument"))

		Expect(conn.WriteJSON(map[string]string{"type": "reset"})).To(Succeed())
		f = readFrame()
		Expect(f.Type).To(Equal("reply"))
		Expect(f.Reply["phase"]).To(Equal("awaiting_description"))
	})

	It("attaches and detaches images", func() {
		Expect(conn.WriteJSON(map[string]string{"type": "attach", "image": "https://cdn.example/photo.jpg"})).To(Succeed())
		f := readFrame()
		img := f.Reply["draft"].(map[string]any)["image"].(map[string]any)
		Expect(img["ref"]).To(Equal("https://cdn.example/photo.jpg"))

		Expect(conn.WriteJSON(map[string]string{"type": "detach"})).To(Succeed())
		f = readFrame()
		img = f.Reply["draft"].(map[string]any)["image"].(map[string]any)
		Expect(img["state"]).To(Equal("declined"))
	})
})
