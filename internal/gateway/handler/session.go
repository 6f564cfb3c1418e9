package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cityalert/internal/intake"
	"cityalert/internal/logger"
	"cityalert/internal/session"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	store *session.Store
}

func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

type turnRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type imageRequest struct {
	Image string `json:"image" binding:"required"`
}

// Create starts a session and returns its greeting.
func (h *SessionHandler) Create(c *gin.Context) {
	sess, reply := h.store.Create(c.Request.Context())
	c.JSON(http.StatusCreated, toReplyResponse(sess.ID, reply))
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// Turn forwards one user message. The image field, when present, is a data
// URL or an opaque reference.
func (h *SessionHandler) Turn(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	img, err := parseImage(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" && img == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or image is required"})
		return
	}

	ctx := c.Request.Context()
	reply := sess.Do(func(e *intake.Engine) intake.Reply {
		return e.SubmitUserTurn(ctx, req.Text, img)
	})
	c.JSON(http.StatusOK, toReplyResponse(sess.ID, reply))
}

func (h *SessionHandler) AttachImage(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: image is required"})
		return
	}
	img, err := parseImage(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	reply := sess.Do(func(e *intake.Engine) intake.Reply {
		return e.AttachImage(ctx, img)
	})
	c.JSON(http.StatusOK, toReplyResponse(sess.ID, reply))
}

func (h *SessionHandler) DetachImage(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	reply := sess.Do(func(e *intake.Engine) intake.Reply {
		e.DetachImage()
		return intake.Reply{Phase: e.Phase(), Draft: e.Draft()}
	})
	c.JSON(http.StatusOK, toReplyResponse(sess.ID, reply))
}

func (h *SessionHandler) Reset(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	reply := sess.Do(func(e *intake.Engine) intake.Reply {
		return e.Reset(ctx)
	})
	c.JSON(http.StatusOK, toReplyResponse(sess.ID, reply))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if !h.store.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// lookup resolves :id and tags the request context with it.
func (h *SessionHandler) lookup(c *gin.Context) (*session.Session, bool) {
	id := strings.TrimSpace(c.Param("id"))
	sess, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		slog.ErrorContext(c.Request.Context(), "session lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{SessionID: logger.Ptr(sess.ID)})
	c.Request = c.Request.WithContext(ctx)
	return sess, true
}
