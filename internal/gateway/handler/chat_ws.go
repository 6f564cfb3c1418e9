package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cityalert/internal/intake"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	chatWSWriteWait = 10 * time.Second
	chatWSPongWait  = 60 * time.Second
	chatWSPingEvery = (chatWSPongWait * 9) / 10
)

var chatWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type chatWSInbound struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type chatWSOutbound struct {
	Type    string         `json:"type"`
	Reply   *replyResponse `json:"reply,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Chat upgrades to a websocket bound to one session. Every inbound frame is
// one engine call; its reply goes out as a "reply" frame.
func (h *SessionHandler) Chat(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	conn, err := chatWSUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(chatWSPongWait)); err != nil {
		slog.WarnContext(ctx, "chat ws set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatWSPongWait))
	})

	writeCh := make(chan chatWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(chatWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	slog.InfoContext(ctx, "chat socket opened")
	pushChatWS(writeCh, chatWSOutbound{Type: "session", Message: sess.ID})

	for {
		var in chatWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			slog.DebugContext(ctx, "chat socket closed", "error", err)
			cancel()
			<-writerDone
			return
		}

		msgType := strings.ToLower(strings.TrimSpace(in.Type))
		var reply intake.Reply
		switch msgType {
		case "ping":
			pushChatWS(writeCh, chatWSOutbound{Type: "pong"})
			continue
		case "turn":
			img, err := parseImage(in.Image)
			if err != nil {
				pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Message: err.Error()})
				continue
			}
			if strings.TrimSpace(in.Text) == "" && img == nil {
				pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Message: "text or image is required"})
				continue
			}
			reply = sess.Do(func(e *intake.Engine) intake.Reply {
				return e.SubmitUserTurn(ctx, in.Text, img)
			})
		case "attach":
			img, err := parseImage(in.Image)
			if err != nil || img == nil {
				msg := "image is required"
				if err != nil {
					msg = err.Error()
				}
				pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Message: msg})
				continue
			}
			reply = sess.Do(func(e *intake.Engine) intake.Reply {
				return e.AttachImage(ctx, img)
			})
		case "detach":
			reply = sess.Do(func(e *intake.Engine) intake.Reply {
				e.DetachImage()
				return intake.Reply{Phase: e.Phase(), Draft: e.Draft()}
			})
		case "reset":
			reply = sess.Do(func(e *intake.Engine) intake.Reply {
				return e.Reset(ctx)
			})
		case "":
			pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Message: "type is required"})
			continue
		default:
			pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Message: "unsupported type: " + msgType})
			continue
		}

		resp := toReplyResponse(sess.ID, reply)
		pushChatWS(writeCh, chatWSOutbound{Type: "reply", Reply: &resp})
	}
}

// pushChatWS never blocks the reader; when the queue is full the oldest
// frame is dropped.
func pushChatWS(writeCh chan chatWSOutbound, out chatWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
