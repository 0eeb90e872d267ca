// Package analytics implements best-effort product analytics. Nothing in this
// package returns an error to the caller on the hot path: a broken analytics
// pipeline drops events, it never breaks the feature that emitted them.
package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"probable/internal/models"
	"probable/internal/repository"
)

const (
	defaultFlushSize     = 10
	defaultFlushInterval = 1500 * time.Millisecond
	defaultDedupWindow   = time.Second
	flushTimeout         = 5 * time.Second
)

// Context carries the per-request enrichment attached to every event.
type Context struct {
	SessionID string
	Pathname  string
	Referrer  string
	UserAgent string
	UTM       map[string]string
	Params    map[string]any
}

// Recorder queues events in memory and writes them in batches: immediately
// once the queue reaches FlushSize, otherwise FlushInterval after the first
// unflushed event. The pending timer is armed once and not reset by later
// events. Failed batches are dropped, not retried.
type Recorder struct {
	repo   repository.Repository
	logger *zap.Logger

	flushSize     int
	flushInterval time.Duration
	dedupWindow   time.Duration

	mu           sync.Mutex
	queue        []models.AnalyticsEvent
	timer        *time.Timer
	lastPageView map[string]time.Time
	closed       bool

	now func() time.Time
}

type Option func(*Recorder)

func WithFlushSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.flushSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

func WithDedupWindow(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.dedupWindow = d
		}
	}
}

func NewRecorder(repo repository.Repository, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		repo:          repo,
		logger:        logger,
		flushSize:     defaultFlushSize,
		flushInterval: defaultFlushInterval,
		dedupWindow:   defaultDedupWindow,
		lastPageView:  map[string]time.Time{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track enqueues one event. It never fails; marshal problems degrade to an
// event without the offending field.
func (r *Recorder) Track(name string, evCtx Context) {
	if r == nil || r.repo == nil || name == "" {
		return
	}

	item := models.AnalyticsEvent{
		SessionID: evCtx.SessionID,
		EventName: name,
		CreatedAt: r.now().UTC(),
	}
	if evCtx.Pathname != "" {
		item.Pathname = &evCtx.Pathname
	}
	if evCtx.Referrer != "" {
		item.Referrer = &evCtx.Referrer
	}
	if evCtx.UserAgent != "" {
		item.UserAgent = &evCtx.UserAgent
	}
	if len(evCtx.UTM) > 0 {
		if raw, err := json.Marshal(evCtx.UTM); err == nil {
			item.UTM = datatypes.JSON(raw)
		}
	}
	if len(evCtx.Params) > 0 {
		if raw, err := json.Marshal(evCtx.Params); err == nil {
			item.Params = datatypes.JSON(raw)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, item)
	if len(r.queue) >= r.flushSize {
		batch := r.takeLocked()
		r.mu.Unlock()
		go r.write(batch)
		return
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(r.flushInterval, r.Flush)
	}
	r.mu.Unlock()
}

// TrackPageView records a page view, dropping a duplicate for the same
// session and path within the dedup window. That guard absorbs the client
// double-fire on re-renders.
func (r *Recorder) TrackPageView(path string, evCtx Context) {
	if r == nil || path == "" {
		return
	}
	key := evCtx.SessionID + "|" + path
	now := r.now()

	r.mu.Lock()
	// Entries are dead one dedup window after insertion; sweep them here so
	// the map stays bounded by the number of distinct views inside the
	// current window instead of growing per visitor-session for the life of
	// the process.
	for k, ts := range r.lastPageView {
		if now.Sub(ts) >= r.dedupWindow {
			delete(r.lastPageView, k)
		}
	}
	if last, ok := r.lastPageView[key]; ok && now.Sub(last) < r.dedupWindow {
		r.mu.Unlock()
		return
	}
	r.lastPageView[key] = now
	r.mu.Unlock()

	evCtx.Pathname = path
	if evCtx.Params == nil {
		evCtx.Params = map[string]any{}
	}
	evCtx.Params["path"] = path
	r.Track("page_view", evCtx)
}

// Flush writes whatever is queued right now. Safe to call at any time.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.mu.Lock()
	batch := r.takeLocked()
	r.mu.Unlock()
	r.write(batch)
}

// Close stops the pending timer and performs a final synchronous flush.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()
	r.write(batch)
}

// takeLocked detaches the queue and disarms the timer. Caller holds mu.
func (r *Recorder) takeLocked() []models.AnalyticsEvent {
	batch := r.queue
	r.queue = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return batch
}

func (r *Recorder) write(batch []models.AnalyticsEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := r.repo.InsertAnalyticsEvents(ctx, batch); err != nil && r.logger != nil {
		// Dropped, not retried.
		r.logger.Debug("analytics batch dropped", zap.Int("events", len(batch)), zap.Error(err))
	}
}
