package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"probable/internal/models"
	"probable/internal/repository"
)

// stubRepo is a test-only in-memory sink for analytics batches.
type stubRepo struct {
	mu      sync.Mutex
	batches [][]models.AnalyticsEvent
}

func (s *stubRepo) InsertAnalyticsEvents(ctx context.Context, items []models.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, items)
	return nil
}

func (s *stubRepo) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *stubRepo) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *stubRepo) UpsertWaitlistLead(ctx context.Context, item *models.WaitlistLead) (repository.UpsertResult, error) {
	return repository.UpsertResult{}, nil
}
func (s *stubRepo) GetWaitlistLeadByEmail(ctx context.Context, email string) (*models.WaitlistLead, error) {
	return nil, nil
}
func (s *stubRepo) ListWaitlistLeads(ctx context.Context, params repository.ListLeadsParams) ([]models.WaitlistLead, error) {
	return nil, nil
}
func (s *stubRepo) CountWaitlistLeads(ctx context.Context) (int64, error) { return 0, nil }
func (s *stubRepo) InsertDemoRequest(ctx context.Context, item *models.DemoRequest) error {
	return nil
}
func (s *stubRepo) ListDemoRequests(ctx context.Context, params repository.ListLeadsParams) ([]models.DemoRequest, error) {
	return nil, nil
}
func (s *stubRepo) ListAnalyticsEvents(ctx context.Context, params repository.ListEventsParams) ([]models.AnalyticsEvent, error) {
	return nil, nil
}
func (s *stubRepo) DeleteAnalyticsEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestFlushAtQueueSize(t *testing.T) {
	repo := &stubRepo{}
	r := NewRecorder(repo, nil, WithFlushInterval(time.Hour))
	for i := 0; i < 10; i++ {
		r.Track("evt", Context{SessionID: "s1"})
	}
	if !waitFor(t, time.Second, func() bool { return repo.eventCount() == 10 }) {
		t.Fatalf("events flushed = %d, want 10 immediately at queue size", repo.eventCount())
	}
	if repo.batchCount() != 1 {
		t.Fatalf("batches = %d, want 1", repo.batchCount())
	}
}

func TestDebouncedFlushFiresOnceAfterInterval(t *testing.T) {
	repo := &stubRepo{}
	interval := 200 * time.Millisecond
	r := NewRecorder(repo, nil, WithFlushInterval(interval))

	r.Track("evt", Context{SessionID: "s1"})
	// A later event must not reset the pending timer.
	time.Sleep(interval / 2)
	r.Track("evt", Context{SessionID: "s1"})

	if repo.batchCount() != 0 {
		t.Fatalf("flushed before the interval elapsed")
	}
	if !waitFor(t, interval, func() bool { return repo.batchCount() == 1 }) {
		t.Fatalf("timer flush did not fire within one interval of the first event")
	}
	if repo.eventCount() != 2 {
		t.Fatalf("events = %d, want both events in the timer flush", repo.eventCount())
	}
}

func TestPageViewDedup(t *testing.T) {
	repo := &stubRepo{}
	r := NewRecorder(repo, nil, WithFlushInterval(time.Hour))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	r.TrackPageView("/x", Context{SessionID: "s1"})
	now = base.Add(500 * time.Millisecond)
	r.TrackPageView("/x", Context{SessionID: "s1"})

	r.Flush()
	if got := repo.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1 (duplicate within 1s dropped)", got)
	}

	now = base.Add(2 * time.Second)
	r.TrackPageView("/x", Context{SessionID: "s1"})
	r.Flush()
	if got := repo.eventCount(); got != 2 {
		t.Fatalf("events = %d, want 2 after the window passed", got)
	}
}

func TestPageViewDedupPrunesStaleEntries(t *testing.T) {
	repo := &stubRepo{}
	r := NewRecorder(repo, nil, WithFlushInterval(time.Hour))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	for i, sess := range []string{"s1", "s2", "s3"} {
		now = base.Add(time.Duration(i) * 100 * time.Millisecond)
		r.TrackPageView("/x", Context{SessionID: sess})
	}

	// Well past the dedup window: every earlier guard entry is dead and the
	// next view must sweep them instead of accumulating forever.
	now = base.Add(time.Minute)
	r.TrackPageView("/x", Context{SessionID: "s4"})

	r.mu.Lock()
	size := len(r.lastPageView)
	r.mu.Unlock()
	if size != 1 {
		t.Fatalf("lastPageView entries = %d, want 1 (stale guards pruned)", size)
	}
}

func TestPageViewDedupIsPerPath(t *testing.T) {
	repo := &stubRepo{}
	r := NewRecorder(repo, nil, WithFlushInterval(time.Hour))

	r.TrackPageView("/x", Context{SessionID: "s1"})
	r.TrackPageView("/y", Context{SessionID: "s1"})
	r.Flush()
	if got := repo.eventCount(); got != 2 {
		t.Fatalf("events = %d, want 2 for distinct paths", got)
	}
}

func TestTrackNeverPanicsWithNilDeps(t *testing.T) {
	var r *Recorder
	r.Track("evt", Context{})
	r.TrackPageView("/x", Context{})
	r.Flush()
	r.Close()

	r = NewRecorder(nil, nil)
	r.Track("evt", Context{SessionID: "s"})
}

func TestCloseFlushesRemainder(t *testing.T) {
	repo := &stubRepo{}
	r := NewRecorder(repo, nil, WithFlushInterval(time.Hour))
	r.Track("evt", Context{SessionID: "s1"})
	r.Close()
	if repo.eventCount() != 1 {
		t.Fatalf("events = %d, want final flush on close", repo.eventCount())
	}
	// Tracks after close are ignored.
	r.Track("evt", Context{SessionID: "s1"})
	if repo.eventCount() != 1 {
		t.Fatalf("recorder accepted events after close")
	}
}
