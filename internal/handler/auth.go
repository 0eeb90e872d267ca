package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"probable/internal/analytics"
	"probable/internal/auth"
)

// AuthHandler runs the Google sign-in hop. Both endpoints answer with
// redirects: the browser drives this flow, not an API client.
type AuthHandler struct {
	Flow     *auth.Flow
	Recorder *analytics.Recorder
	Logger   *zap.Logger
}

func (h *AuthHandler) Register(r *gin.Engine) {
	r.GET("/auth/google", h.start)
	r.GET("/auth/callback", h.callback)
}

// @Summary Start Google sign-in
// @Tags auth
// @Param redirect query string false "post-auth redirect target"
// @Success 302
// @Router /auth/google [get]
func (h *AuthHandler) start(c *gin.Context) {
	consent, err := h.Flow.Start(c.Request.Context(), c.Query("redirect"))
	if err != nil {
		h.Logger.Warn("auth start failed", zap.Error(err))
		c.Redirect(http.StatusFound, h.Flow.FailureURL())
		return
	}
	h.Recorder.Track("auth_start", analytics.Context{SessionID: SessionID(c)})
	c.Redirect(http.StatusFound, consent)
}

// @Summary Google sign-in callback
// @Tags auth
// @Param state query string true "state nonce"
// @Param code query string false "authorization code"
// @Success 302
// @Router /auth/callback [get]
func (h *AuthHandler) callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		h.Logger.Warn("auth provider error", zap.String("error", errParam))
		c.Redirect(http.StatusFound, h.Flow.FailureURL())
		return
	}
	landing, err := h.Flow.Complete(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		h.Logger.Warn("auth callback failed", zap.Error(err))
		c.Redirect(http.StatusFound, h.Flow.FailureURL())
		return
	}
	h.Recorder.Track("auth_complete", analytics.Context{SessionID: SessionID(c)})
	c.Redirect(http.StatusFound, landing)
}
