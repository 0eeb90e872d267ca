package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"probable/internal/analytics"
	"probable/internal/insights"
	"probable/internal/market"
)

// MarketHandler proxies the insights backend and shapes its raw markets into
// display-ready cards with aggregates.
type MarketHandler struct {
	Insights *insights.Client
	Recorder *analytics.Recorder
	Logger   *zap.Logger

	SearchLimit int
	MarketLimit int
}

func (h *MarketHandler) Register(r *gin.Engine) {
	r.GET("/api/markets", h.markets)
	r.POST("/api/search", h.search)
	r.POST("/api/insights", h.insights)
}

type searchRequest struct {
	Query           string `json:"query" binding:"required"`
	IncludeResearch bool   `json:"includeResearch"`
	Limit           int    `json:"limit"`
}

type insightsRequest struct {
	Question string `json:"question" binding:"required"`
}

type marketsPayload struct {
	Markets    []market.Card     `json:"markets"`
	Aggregates market.Aggregates `json:"aggregates"`
	Query      string            `json:"query,omitempty"`
}

// @Summary List markets
// @Tags markets
// @Param limit query int false "max markets"
// @Param search query string false "text filter"
// @Success 200 {object} handler.apiResponse
// @Router /api/markets [get]
func (h *MarketHandler) markets(c *gin.Context) {
	limit := h.MarketLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	records, err := h.Insights.Markets(c.Request.Context(), limit, c.Query("search"))
	if err != nil {
		h.Logger.Warn("markets fetch failed", zap.Error(err))
		Error(c, http.StatusBadGateway, "market data is temporarily unavailable", nil)
		return
	}
	Ok(c, marketsPayload{
		Markets:    market.Enrich(records, nil, time.Now()),
		Aggregates: market.Consensus(records),
	}, nil)
}

// @Summary Search markets
// @Tags markets
// @Param request body handler.searchRequest true "search request"
// @Success 200 {object} handler.apiResponse
// @Router /api/search [post]
func (h *MarketHandler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "query is required", nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		Error(c, http.StatusBadRequest, "query is required", nil)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = h.SearchLimit
	}
	res, err := h.Insights.Search(c.Request.Context(), req.Query, req.IncludeResearch, limit)
	if err != nil {
		h.Logger.Warn("search failed", zap.Error(err), zap.String("query", req.Query))
		Error(c, http.StatusBadGateway, "search is temporarily unavailable", nil)
		return
	}
	h.Recorder.Track("search", analytics.Context{
		SessionID: SessionID(c),
		Params:    map[string]any{"query": req.Query, "results": len(res.Markets)},
	})
	Ok(c, marketsPayload{
		Markets:    market.Enrich(res.Markets, res.Research, time.Now()),
		Aggregates: market.Consensus(res.Markets),
		Query:      res.Query,
	}, nil)
}

type insightsPayload struct {
	Summary        string                   `json:"summary,omitempty"`
	Insights       []string                 `json:"insights,omitempty"`
	Markets        []market.Card            `json:"markets"`
	Aggregates     market.Aggregates        `json:"aggregates"`
	TrendSignal    *insights.TrendSignal    `json:"trendSignal,omitempty"`
	RiskAssessment *insights.RiskAssessment `json:"riskAssessment,omitempty"`
	Extra          map[string]any           `json:"extra,omitempty"`
}

// @Summary AI insights for a question
// @Tags markets
// @Param request body handler.insightsRequest true "insights request"
// @Success 200 {object} handler.apiResponse
// @Router /api/insights [post]
func (h *MarketHandler) insights(c *gin.Context) {
	var req insightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "question is required", nil)
		return
	}
	res, err := h.Insights.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.Logger.Warn("insights failed", zap.Error(err))
		Error(c, http.StatusBadGateway, "insights are temporarily unavailable", nil)
		return
	}
	aggregates := market.Consensus(res.Markets)
	if res.Aggregates != nil {
		aggregates = *res.Aggregates
	}
	h.Recorder.Track("insights_request", analytics.Context{
		SessionID: SessionID(c),
		Params:    map[string]any{"markets": len(res.Markets)},
	})
	Ok(c, insightsPayload{
		Summary:        res.Summary,
		Insights:       res.Insights,
		Markets:        market.Enrich(res.Markets, res.Research, time.Now()),
		Aggregates:     aggregates,
		TrendSignal:    res.TrendSignal,
		RiskAssessment: res.RiskAssessment,
		Extra:          res.Extra,
	}, nil)
}
