package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"probable/internal/analytics"
	"probable/internal/chat"
)

type ChatHandler struct {
	Store    *chat.Store
	Recorder *analytics.Recorder
	Logger   *zap.Logger
}

func (h *ChatHandler) Register(r *gin.Engine) {
	group := r.Group("/api/chat")
	group.GET("/sessions", h.list)
	group.GET("/sessions/grouped", h.grouped)
	group.POST("/sessions", h.create)
	group.GET("/sessions/:id", h.get)
	group.POST("/sessions/:id/messages", h.message)
	group.DELETE("/sessions/:id", h.remove)
}

type chatMessageRequest struct {
	Question string `json:"question" binding:"required"`
}

// @Summary List chat sessions
// @Tags chat
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions [get]
func (h *ChatHandler) list(c *gin.Context) {
	sessions, err := h.Store.List(c.Request.Context(), SessionID(c))
	if err != nil {
		Error(c, http.StatusInternalServerError, "could not load chat history", nil)
		return
	}
	Ok(c, gin.H{"sessions": sessions}, nil)
}

// @Summary List chat sessions grouped by recency
// @Tags chat
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions/grouped [get]
func (h *ChatHandler) grouped(c *gin.Context) {
	sessions, err := h.Store.List(c.Request.Context(), SessionID(c))
	if err != nil {
		Error(c, http.StatusInternalServerError, "could not load chat history", nil)
		return
	}
	Ok(c, gin.H{"groups": chat.GroupByRecency(sessions, time.Now())}, nil)
}

// @Summary Start a chat session with a first question
// @Tags chat
// @Param request body handler.chatMessageRequest true "first question"
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions [post]
func (h *ChatHandler) create(c *gin.Context) {
	h.ask(c, "")
}

// @Summary Ask a follow-up in an existing session
// @Tags chat
// @Param id path string true "session id"
// @Param request body handler.chatMessageRequest true "question"
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions/{id}/messages [post]
func (h *ChatHandler) message(c *gin.Context) {
	h.ask(c, c.Param("id"))
}

func (h *ChatHandler) ask(c *gin.Context, sessionID string) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "question is required", nil)
		return
	}
	sess, err := h.Store.Ask(c.Request.Context(), SessionID(c), sessionID, req.Question)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			Error(c, http.StatusNotFound, "session not found", nil)
			return
		}
		h.Logger.Warn("chat ask failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, "could not process your question, please try again", nil)
		return
	}
	h.Recorder.Track("chat_message", analytics.Context{
		SessionID: SessionID(c),
		Params:    map[string]any{"session": sess.ID, "new_session": sessionID == ""},
	})
	Ok(c, sess, nil)
}

// @Summary Get one chat session
// @Tags chat
// @Param id path string true "session id"
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions/{id} [get]
func (h *ChatHandler) get(c *gin.Context) {
	sess, err := h.Store.Get(c.Request.Context(), SessionID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			Error(c, http.StatusNotFound, "session not found", nil)
			return
		}
		Error(c, http.StatusInternalServerError, "could not load chat session", nil)
		return
	}
	Ok(c, sess, nil)
}

// @Summary Delete a chat session
// @Tags chat
// @Param id path string true "session id"
// @Success 200 {object} handler.apiResponse
// @Router /api/chat/sessions/{id} [delete]
func (h *ChatHandler) remove(c *gin.Context) {
	err := h.Store.Delete(c.Request.Context(), SessionID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			Error(c, http.StatusNotFound, "session not found", nil)
			return
		}
		Error(c, http.StatusInternalServerError, "could not delete chat session", nil)
		return
	}
	Ok(c, gin.H{"deleted": true}, nil)
}
