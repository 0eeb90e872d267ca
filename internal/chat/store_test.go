package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	cacheredis "probable/internal/cache/redis"
	"probable/internal/insights"
	"probable/internal/market"

	"go.uber.org/zap"
)

type stubKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newStubKV() *stubKV {
	return &stubKV{values: map[string]string{}}
}

func (s *stubKV) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	if !ok {
		return "", cacheredis.ErrNotFound
	}
	return val, nil
}

func (s *stubKV) Update(_ context.Context, key string, _ time.Duration, fn func(current string, exists bool) (string, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.values[key]
	next, del, err := fn(current, exists)
	if err != nil {
		return err
	}
	if del {
		delete(s.values, key)
		return nil
	}
	s.values[key] = next
	return nil
}

type stubAsker struct {
	result *insights.InsightsResult
	err    error
	asked  []string
}

func (s *stubAsker) Ask(_ context.Context, question string) (*insights.InsightsResult, error) {
	s.asked = append(s.asked, question)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestStore(kv *stubKV, asker Asker) *Store {
	st := NewStore(kv, asker, zap.NewNop(), 0)
	return st
}

func askerWithMarkets() *stubAsker {
	return &stubAsker{result: &insights.InsightsResult{
		Summary: "Markets lean yes.",
		Markets: []market.Record{
			{Question: "Will it rain?", Prices: market.PriceList{0.7, 0.3}},
		},
	}}
}

func TestAskCreatesSessionAndTitle(t *testing.T) {
	kv := newStubKV()
	store := newTestStore(kv, askerWithMarkets())

	sess, err := store.Ask(context.Background(), "v1", "", "Will it rain tomorrow?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Title != "Will it rain tomorrow?" {
		t.Fatalf("unexpected title: %q", sess.Title)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != "user" || sess.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %q, %q", sess.Messages[0].Role, sess.Messages[1].Role)
	}
	if sess.Messages[1].Content != "Markets lean yes." {
		t.Fatalf("unexpected reply: %q", sess.Messages[1].Content)
	}
	if len(sess.Messages[1].Markets) != 1 {
		t.Fatalf("expected enriched markets on the reply")
	}
	if sess.Messages[1].Aggregates == nil {
		t.Fatal("expected computed aggregates when upstream sends none")
	}
}

func TestAskTruncatesLongTitle(t *testing.T) {
	store := newTestStore(newStubKV(), askerWithMarkets())
	question := "What is the probability that the incumbent wins re-election this year?"
	sess, err := store.Ask(context.Background(), "v1", "", question)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(sess.Title, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", sess.Title)
	}
	if got := len([]rune(strings.TrimSuffix(sess.Title, "..."))); got != 30 {
		t.Fatalf("expected 30-rune prefix, got %d", got)
	}
}

func TestAskAppendsToExistingSession(t *testing.T) {
	store := newTestStore(newStubKV(), askerWithMarkets())
	first, err := store.Ask(context.Background(), "v1", "", "first question")
	if err != nil {
		t.Fatalf("first ask: %v", err)
	}
	second, err := store.Ask(context.Background(), "v1", first.ID, "follow up")
	if err != nil {
		t.Fatalf("second ask: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same session, got %q and %q", first.ID, second.ID)
	}
	if len(second.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(second.Messages))
	}
	if second.Title != "first question" {
		t.Fatalf("title must not change on follow-ups: %q", second.Title)
	}
}

func TestAskUnknownSession(t *testing.T) {
	store := newTestStore(newStubKV(), askerWithMarkets())
	if _, err := store.Ask(context.Background(), "v1", "nope", "question"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAskUpstreamErrorStillPersists(t *testing.T) {
	kv := newStubKV()
	store := newTestStore(kv, &stubAsker{err: errors.New("upstream 500")})
	sess, err := store.Ask(context.Background(), "v1", "", "question")
	if err != nil {
		t.Fatalf("upstream failure must not fail the ask: %v", err)
	}
	reply := sess.Messages[len(sess.Messages)-1]
	if reply.Content != "Sorry, I encountered an error. Please try again." {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
	if !reply.Failed {
		t.Fatal("expected failed flag on the reply")
	}
	stored, err := store.List(context.Background(), "v1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected session persisted, got %d (%v)", len(stored), err)
	}
}

func TestAskNoMarketsReply(t *testing.T) {
	store := newTestStore(newStubKV(), &stubAsker{result: &insights.InsightsResult{
		Summary: "ignored",
		Markets: []market.Record{},
	}})
	sess, err := store.Ask(context.Background(), "v1", "", "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply := sess.Messages[len(sess.Messages)-1]
	if reply.Content != "I couldn't find any relevant markets for that query." {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
}

func TestConcurrentAsksBothPersist(t *testing.T) {
	kv := newStubKV()
	store := newTestStore(kv, askerWithMarkets())

	var wg sync.WaitGroup
	for _, q := range []string{"first question", "second question"} {
		wg.Add(1)
		go func(question string) {
			defer wg.Done()
			if _, err := store.Ask(context.Background(), "v1", "", question); err != nil {
				t.Errorf("ask %q: %v", question, err)
			}
		}(q)
	}
	wg.Wait()

	sessions, err := store.List(context.Background(), "v1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected both concurrent sessions persisted, got %d", len(sessions))
	}
}

func TestDeleteLastSessionRemovesDocument(t *testing.T) {
	kv := newStubKV()
	store := newTestStore(kv, askerWithMarkets())
	sess, err := store.Ask(context.Background(), "v1", "", "question")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(kv.values) != 1 {
		t.Fatalf("expected stored document, got %d keys", len(kv.values))
	}
	if err := store.Delete(context.Background(), "v1", sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(kv.values) != 0 {
		t.Fatalf("expected document removed, %d keys remain", len(kv.values))
	}
	if err := store.Delete(context.Background(), "v1", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLegacyMessageArrayMigration(t *testing.T) {
	kv := newStubKV()
	legacy := []Message{
		{Role: "user", Content: "old question", Timestamp: 1},
		{Role: "assistant", Content: "old answer", Timestamp: 2},
	}
	raw, _ := json.Marshal(legacy)
	kv.values[keyPrefix+"v1"] = string(raw)

	store := newTestStore(kv, askerWithMarkets())
	sessions, err := store.List(context.Background(), "v1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one migrated session, got %d", len(sessions))
	}
	sess := sessions[0]
	if !strings.HasPrefix(sess.ID, "legacy-") {
		t.Fatalf("unexpected migrated id: %q", sess.ID)
	}
	if sess.Title != "Previous Chat" {
		t.Fatalf("unexpected migrated title: %q", sess.Title)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 migrated messages, got %d", len(sess.Messages))
	}
}

func TestLegacySessionArrayMigration(t *testing.T) {
	kv := newStubKV()
	legacy := []Session{{ID: "s1", Title: "Old", Timestamp: 1, Messages: []Message{{Role: "user", Content: "hi"}}}}
	raw, _ := json.Marshal(legacy)
	kv.values[keyPrefix+"v1"] = string(raw)

	store := newTestStore(kv, askerWithMarkets())
	sessions, err := store.List(context.Background(), "v1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("expected legacy session preserved, got %+v", sessions)
	}
}

func TestGroupByRecency(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	mk := func(id string, ts time.Time) Session {
		return Session{ID: id, Timestamp: ts.UnixMilli()}
	}
	sessions := []Session{
		mk("today", time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)),
		mk("yesterday", time.Date(2025, 6, 14, 23, 0, 0, 0, time.UTC)),
		mk("week", time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)),
		mk("older", time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	groups := GroupByRecency(sessions, now)
	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d", len(groups))
	}
	want := []struct {
		label string
		id    string
	}{
		{"Today", "today"},
		{"Yesterday", "yesterday"},
		{"Previous 7 Days", "week"},
		{"Older", "older"},
	}
	for i, w := range want {
		if groups[i].Label != w.label {
			t.Fatalf("group %d: expected label %q, got %q", i, w.label, groups[i].Label)
		}
		if len(groups[i].Sessions) != 1 || groups[i].Sessions[0].ID != w.id {
			t.Fatalf("group %q: unexpected sessions %+v", w.label, groups[i].Sessions)
		}
	}
}

func TestGroupByRecencySkipsEmptyBuckets(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	sessions := []Session{{ID: "only", Timestamp: now.Add(-time.Hour).UnixMilli()}}
	groups := GroupByRecency(sessions, now)
	if len(groups) != 1 || groups[0].Label != "Today" {
		t.Fatalf("expected single Today group, got %+v", groups)
	}
}
