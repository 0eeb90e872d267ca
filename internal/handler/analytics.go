package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"probable/internal/analytics"
)

// AnalyticsHandler ingests client-side events into the recorder. Ingest is
// deliberately forgiving: malformed items are skipped, not rejected, because
// a failed analytics call must never surface in the product.
type AnalyticsHandler struct {
	Recorder    *analytics.Recorder
	Attribution *analytics.Attribution
	Logger      *zap.Logger
}

func (h *AnalyticsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/analytics")
	group.POST("/events", h.events)
	group.POST("/pageview", h.pageview)
}

type eventItem struct {
	Name     string         `json:"name"`
	Pathname string         `json:"pathname"`
	Referrer string         `json:"referrer"`
	Params   map[string]any `json:"params"`
}

type eventsRequest struct {
	Events []eventItem `json:"events"`
}

type pageviewRequest struct {
	Path     string `json:"path"`
	Referrer string `json:"referrer"`
	// Raw query string of the viewed page; utm_* params are captured once
	// per session from it.
	Search string `json:"search"`
}

// @Summary Ingest analytics events
// @Tags analytics
// @Param request body handler.eventsRequest true "event batch"
// @Success 200 {object} handler.apiResponse
// @Router /api/analytics/events [post]
func (h *AnalyticsHandler) events(c *gin.Context) {
	var req eventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	session := SessionID(c)
	utm := h.Attribution.Lookup(c.Request.Context(), session)
	accepted := 0
	for _, ev := range req.Events {
		if ev.Name == "" {
			continue
		}
		h.Recorder.Track(ev.Name, analytics.Context{
			SessionID: session,
			Pathname:  ev.Pathname,
			Referrer:  ev.Referrer,
			UserAgent: c.Request.UserAgent(),
			UTM:       utm,
			Params:    ev.Params,
		})
		accepted++
	}
	Ok(c, gin.H{"accepted": accepted}, nil)
}

// @Summary Record a page view
// @Tags analytics
// @Param request body handler.pageviewRequest true "page view"
// @Success 200 {object} handler.apiResponse
// @Router /api/analytics/pageview [post]
func (h *AnalyticsHandler) pageview(c *gin.Context) {
	var req pageviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Path == "" {
		Error(c, http.StatusBadRequest, "path is required", nil)
		return
	}
	session := SessionID(c)
	if req.Search != "" {
		if params, err := url.ParseQuery(req.Search); err == nil {
			h.Attribution.Capture(c.Request.Context(), session, params)
		}
	}
	h.Recorder.TrackPageView(req.Path, analytics.Context{
		SessionID: session,
		Referrer:  req.Referrer,
		UserAgent: c.Request.UserAgent(),
		UTM:       h.Attribution.Lookup(c.Request.Context(), session),
	})
	Ok(c, gin.H{"accepted": 1}, nil)
}
