package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"probable/internal/analytics"
	"probable/internal/insights"
	"probable/internal/leads"
	"probable/internal/models"
	"probable/internal/notify"
	"probable/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRepo struct {
	mu     sync.Mutex
	leads  []*models.WaitlistLead
	demos  []*models.DemoRequest
	events []models.AnalyticsEvent
}

func (s *stubRepo) UpsertWaitlistLead(_ context.Context, item *models.WaitlistLead) (repository.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.leads {
		if existing.Email == item.Email {
			return repository.UpsertResult{AlreadyJoined: true}, nil
		}
	}
	s.leads = append(s.leads, item)
	return repository.UpsertResult{}, nil
}

func (s *stubRepo) GetWaitlistLeadByEmail(_ context.Context, _ string) (*models.WaitlistLead, error) {
	return nil, nil
}

func (s *stubRepo) ListWaitlistLeads(_ context.Context, _ repository.ListLeadsParams) ([]models.WaitlistLead, error) {
	out := make([]models.WaitlistLead, 0, len(s.leads))
	for _, item := range s.leads {
		out = append(out, *item)
	}
	return out, nil
}

func (s *stubRepo) CountWaitlistLeads(_ context.Context) (int64, error) {
	return int64(len(s.leads)), nil
}

func (s *stubRepo) InsertDemoRequest(_ context.Context, item *models.DemoRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demos = append(s.demos, item)
	return nil
}

func (s *stubRepo) ListDemoRequests(_ context.Context, _ repository.ListLeadsParams) ([]models.DemoRequest, error) {
	out := make([]models.DemoRequest, 0, len(s.demos))
	for _, item := range s.demos {
		out = append(out, *item)
	}
	return out, nil
}

func (s *stubRepo) InsertAnalyticsEvents(_ context.Context, items []models.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, items...)
	return nil
}

func (s *stubRepo) ListAnalyticsEvents(_ context.Context, _ repository.ListEventsParams) ([]models.AnalyticsEvent, error) {
	return s.events, nil
}

func (s *stubRepo) DeleteAnalyticsEventsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(SessionMiddleware())
	return r
}

func postJSON(r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestSessionMiddlewareAssignsAndEchoes(t *testing.T) {
	r := newEngine()
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assigned := w.Header().Get(SessionHeader)
	if assigned == "" || w.Body.String() != assigned {
		t.Fatalf("expected assigned session echoed, header=%q body=%q", assigned, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(SessionHeader, "client-session")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "client-session" {
		t.Fatalf("expected client session kept, got %q", w.Body.String())
	}
}

func newLeadHandler(repo *stubRepo) *LeadHandler {
	return &LeadHandler{Service: &leads.Service{
		Repo:           repo,
		Notifier:       notify.New(nil, zap.NewNop()),
		Logger:         zap.NewNop(),
		WaitlistSource: "client_waitlist_modal",
		DemoSource:     "client_support_form",
	}}
}

func TestWaitlistEndpoint(t *testing.T) {
	repo := &stubRepo{}
	r := newEngine()
	newLeadHandler(repo).Register(r)

	body := map[string]any{
		"name":       "Ana",
		"email":      "ana@example.com",
		"profession": "analyst",
		"audience":   "individual",
	}
	w := postJSON(r, "/api/leads/waitlist", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Same email again: success with alreadyJoined, not an error.
	w = postJSON(r, "/api/leads/waitlist", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	data, _ := resp.Data.(map[string]any)
	if data["alreadyJoined"] != true {
		t.Fatalf("expected alreadyJoined, got %v", resp.Data)
	}
}

func TestWaitlistEndpointValidation(t *testing.T) {
	r := newEngine()
	newLeadHandler(&stubRepo{}).Register(r)
	w := postJSON(r, "/api/leads/waitlist", map[string]any{
		"name": "Ana", "email": "ana@example.com", "profession": "wizard", "audience": "individual",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Meta["field"] != "profession" {
		t.Fatalf("expected profession field in meta, got %v", resp.Meta)
	}
}

func TestAnalyticsIngestSkipsMalformedItems(t *testing.T) {
	repo := &stubRepo{}
	recorder := analytics.NewRecorder(repo, zap.NewNop(), analytics.WithFlushSize(1))
	defer recorder.Close()
	r := newEngine()
	h := &AnalyticsHandler{
		Recorder:    recorder,
		Attribution: analytics.NewAttribution(nil, time.Minute),
		Logger:      zap.NewNop(),
	}
	h.Register(r)

	w := postJSON(r, "/api/analytics/events", map[string]any{
		"events": []map[string]any{
			{"name": "cta_click", "pathname": "/"},
			{"pathname": "/broken"}, // no name: skipped, not rejected
			{"name": "scroll", "params": map[string]any{"depth": 50}},
		},
	}, map[string]string{SessionHeader: "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	data, _ := resp.Data.(map[string]any)
	if data["accepted"] != float64(2) {
		t.Fatalf("expected 2 accepted, got %v", resp.Data)
	}
}

func TestSearchEndpointProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/search" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte(`{"markets":[{"question":"Will it rain?","outcomePrices":[0.7,0.3],"volume":1000}],"query":"rain"}`))
	}))
	defer upstream.Close()

	repo := &stubRepo{}
	recorder := analytics.NewRecorder(repo, zap.NewNop())
	defer recorder.Close()
	r := newEngine()
	h := &MarketHandler{
		Insights:    insights.NewClient(upstream.Client(), upstream.URL),
		Recorder:    recorder,
		Logger:      zap.NewNop(),
		SearchLimit: 30,
		MarketLimit: 50,
	}
	h.Register(r)

	w := postJSON(r, "/api/search", map[string]any{"query": "rain"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	data, _ := resp.Data.(map[string]any)
	markets, _ := data["markets"].([]any)
	if len(markets) != 1 {
		t.Fatalf("expected 1 market card, got %v", data["markets"])
	}
	card, _ := markets[0].(map[string]any)
	if card["probability"] == nil {
		t.Fatalf("expected probability on card, got %v", card)
	}
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	r := newEngine()
	h := &MarketHandler{
		Insights: insights.NewClient(http.DefaultClient, "http://localhost:0"),
		Recorder: analytics.NewRecorder(nil, nil),
		Logger:   zap.NewNop(),
	}
	h.Register(r)
	w := postJSON(r, "/api/search", map[string]any{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
