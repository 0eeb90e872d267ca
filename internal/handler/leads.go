package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"probable/internal/leads"
)

type LeadHandler struct {
	Service *leads.Service
}

func (h *LeadHandler) Register(r *gin.Engine) {
	group := r.Group("/api/leads")
	group.POST("/waitlist", h.waitlist)
	group.POST("/demo-request", h.demoRequest)
}

// @Summary Join the waitlist
// @Tags leads
// @Param request body leads.WaitlistInput true "waitlist signup"
// @Success 200 {object} handler.apiResponse
// @Router /api/leads/waitlist [post]
func (h *LeadHandler) waitlist(c *gin.Context) {
	var in leads.WaitlistInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	res, err := h.Service.SubmitWaitlist(c.Request.Context(), in)
	if err != nil {
		var verr *leads.ValidationError
		if errors.As(err, &verr) {
			Error(c, http.StatusBadRequest, verr.Message, map[string]any{"field": verr.Field})
			return
		}
		Error(c, http.StatusInternalServerError, "could not save your signup, please try again", nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Request a demo
// @Tags leads
// @Param request body leads.DemoRequestInput true "demo request"
// @Success 200 {object} handler.apiResponse
// @Router /api/leads/demo-request [post]
func (h *LeadHandler) demoRequest(c *gin.Context) {
	var in leads.DemoRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	res, err := h.Service.SubmitDemoRequest(c.Request.Context(), in)
	if err != nil {
		var verr *leads.ValidationError
		if errors.As(err, &verr) {
			Error(c, http.StatusBadRequest, verr.Message, map[string]any{"field": verr.Field})
			return
		}
		Error(c, http.StatusInternalServerError, "could not send your request, please try again", nil)
		return
	}
	Ok(c, res, nil)
}
