package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"probable/internal/market"
)

// Client talks to the upstream market-insights backend that owns search,
// aggregation, and AI insight generation.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("insights API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = "http://localhost:3001"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

type searchRequest struct {
	Query           string `json:"query"`
	IncludeResearch bool   `json:"includeResearch"`
	Limit           int    `json:"limit"`
}

// SearchResult is the normalized shape of a search response: markets always a
// slice, research nil when absent, query echoed back.
type SearchResult struct {
	Markets  []market.Record  `json:"markets"`
	Research *market.Research `json:"research,omitempty"`
	Query    string           `json:"query"`
}

type searchResponse struct {
	Markets  []market.Record  `json:"markets"`
	Data     []market.Record  `json:"data"`
	Research *market.Research `json:"research"`
	Query    string           `json:"query"`
}

// InsightsResult is the /api/insights response. Upstream fields outside the
// typed set ride along in Extra so new backend capabilities surface without a
// client change; Extra never repeats the typed fields.
type InsightsResult struct {
	Summary        string             `json:"summary,omitempty"`
	Insights       []string           `json:"insights,omitempty"`
	Markets        []market.Record    `json:"markets"`
	Aggregates     *market.Aggregates `json:"aggregates,omitempty"`
	Research       *market.Research   `json:"research,omitempty"`
	TrendSignal    *TrendSignal       `json:"trendSignal,omitempty"`
	RiskAssessment *RiskAssessment    `json:"riskAssessment,omitempty"`
	Extra          map[string]any     `json:"-"`
}

type TrendSignal struct {
	Direction   string `json:"direction"`
	Description string `json:"description,omitempty"`
}

type RiskAssessment struct {
	Level       string `json:"level"`
	Description string `json:"description,omitempty"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// Search runs a natural-language market search. On upstream failure it makes
// exactly one fallback attempt against the basic markets endpoint, returning
// markets without research; the fallback's failure is the caller's error.
func (c *Client) Search(ctx context.Context, query string, includeResearch bool, limit int) (*SearchResult, error) {
	raw, err := c.doJSON(ctx, http.MethodPost, "/api/search", searchRequest{
		Query:           query,
		IncludeResearch: includeResearch,
		Limit:           limit,
	})
	if err != nil {
		markets, ferr := c.Markets(ctx, limit, query)
		if ferr != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		return &SearchResult{Markets: markets, Query: query}, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	markets := resp.Markets
	if markets == nil {
		markets = resp.Data
	}
	if markets == nil {
		markets = []market.Record{}
	}
	q := resp.Query
	if q == "" {
		q = query
	}
	return &SearchResult{Markets: markets, Research: resp.Research, Query: q}, nil
}

// Ask requests AI-generated insights for a question. No fallback: a failed
// insights call surfaces to the caller once.
func (c *Client) Ask(ctx context.Context, question string) (*InsightsResult, error) {
	raw, err := c.doJSON(ctx, http.MethodPost, "/api/insights", map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	var resp InsightsResult
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode insights response: %w", err)
	}
	if resp.Markets == nil {
		resp.Markets = []market.Record{}
	}
	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err == nil {
		for _, known := range []string{"summary", "insights", "markets", "aggregates", "research", "trendSignal", "riskAssessment"} {
			delete(extra, known)
		}
		if len(extra) > 0 {
			resp.Extra = extra
		}
	}
	return &resp, nil
}

// Markets fetches the raw market list. The endpoint historically returned
// either a bare array or {markets: [...]}; both are accepted.
func (c *Client) Markets(ctx context.Context, limit int, search string) ([]market.Record, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if search != "" {
		q.Set("search", search)
	}
	raw, err := c.doJSON(ctx, http.MethodGet, "/api/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var direct []market.Record
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Markets []market.Record `json:"markets"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode markets response: %w", err)
	}
	if wrapped.Markets == nil {
		return []market.Record{}, nil
	}
	return wrapped.Markets, nil
}
