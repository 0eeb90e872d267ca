package insights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSearchFallsBackToMarketsOnce(t *testing.T) {
	var searchCalls, marketCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/search":
			searchCalls.Add(1)
			http.Error(w, "boom", http.StatusBadGateway)
		case "/api/markets":
			marketCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"question":"Q1","volume":"100"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	res, err := c.Search(context.Background(), "anything", true, 30)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if searchCalls.Load() != 1 || marketCalls.Load() != 1 {
		t.Fatalf("calls = %d search, %d markets; want exactly one each",
			searchCalls.Load(), marketCalls.Load())
	}
	if len(res.Markets) != 1 || res.Markets[0].Question != "Q1" {
		t.Fatalf("markets = %+v", res.Markets)
	}
	if res.Research != nil {
		t.Fatalf("fallback path must not carry research")
	}
}

func TestSearchPropagatesDoubleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	if _, err := c.Search(context.Background(), "q", true, 10); err == nil {
		t.Fatalf("expected error when both search and fallback fail")
	}
}

func TestSearchAcceptsDataField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"question":"Q1"}],"query":"echoed"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	res, err := c.Search(context.Background(), "q", false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Markets) != 1 || res.Query != "echoed" {
		t.Fatalf("res = %+v", res)
	}
}

func TestMarketsAcceptsWrappedAndBareArrays(t *testing.T) {
	bodies := []string{
		`[{"question":"Q1"}]`,
		`{"markets":[{"question":"Q1"}]}`,
	}
	for _, body := range bodies {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "50" {
				t.Errorf("limit = %q, want 50", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}))
		c := NewClient(srv.Client(), srv.URL)
		markets, err := c.Markets(context.Background(), 50, "")
		srv.Close()
		if err != nil {
			t.Fatalf("Markets(%s): %v", body, err)
		}
		if len(markets) != 1 || markets[0].Question != "Q1" {
			t.Fatalf("markets = %+v", markets)
		}
	}
}

func TestAskCollectsOnlyUnknownFieldsInExtra(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"S","markets":[],"sentiment":{"score":0.8}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	res, err := c.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, ok := res.Extra["sentiment"]; !ok {
		t.Fatalf("extra = %v, want the unknown sentiment field", res.Extra)
	}
	if _, ok := res.Extra["summary"]; ok {
		t.Fatalf("extra must not repeat typed fields: %v", res.Extra)
	}
}

func TestAskWithoutUnknownFieldsLeavesExtraNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"S","markets":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	res, err := c.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Extra != nil {
		t.Fatalf("extra = %v, want nil", res.Extra)
	}
}

func TestAskSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.Ask(context.Background(), "question")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T (%v), want *APIError", err, err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", apiErr.Status)
	}
}
