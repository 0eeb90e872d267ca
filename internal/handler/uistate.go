package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"probable/internal/uistate"
)

type UIStateHandler struct {
	Waitlist *uistate.WaitlistModal
}

func (h *UIStateHandler) Register(r *gin.Engine) {
	group := r.Group("/api/ui/waitlist")
	group.GET("", h.state)
	group.POST("/open", h.open)
	group.POST("/close", h.close)
}

type openWaitlistRequest struct {
	Placement string `json:"placement"`
}

// @Summary Waitlist modal state for this session
// @Tags ui
// @Success 200 {object} handler.apiResponse
// @Router /api/ui/waitlist [get]
func (h *UIStateHandler) state(c *gin.Context) {
	open, placement, err := h.Waitlist.IsOpen(c.Request.Context(), SessionID(c))
	if err != nil {
		Error(c, http.StatusInternalServerError, "could not load modal state", nil)
		return
	}
	Ok(c, gin.H{"open": open, "placement": placement}, nil)
}

// @Summary Open the waitlist modal
// @Tags ui
// @Param request body handler.openWaitlistRequest false "placement"
// @Success 200 {object} handler.apiResponse
// @Router /api/ui/waitlist/open [post]
func (h *UIStateHandler) open(c *gin.Context) {
	var req openWaitlistRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.Waitlist.Open(c.Request.Context(), SessionID(c), req.Placement); err != nil {
		Error(c, http.StatusInternalServerError, "could not open modal", nil)
		return
	}
	Ok(c, gin.H{"open": true}, nil)
}

// @Summary Close the waitlist modal
// @Tags ui
// @Success 200 {object} handler.apiResponse
// @Router /api/ui/waitlist/close [post]
func (h *UIStateHandler) close(c *gin.Context) {
	if err := h.Waitlist.Close(c.Request.Context(), SessionID(c)); err != nil {
		Error(c, http.StatusInternalServerError, "could not close modal", nil)
		return
	}
	Ok(c, gin.H{"open": false}, nil)
}
