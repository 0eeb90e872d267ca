// Package uistate keeps per-session UI flags that must survive page loads,
// currently just the waitlist modal.
package uistate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"probable/internal/analytics"
	cacheredis "probable/internal/cache/redis"
)

const modalKeyPrefix = "probable:waitlist:open:"

// KV is the subset of the Redis client the modal store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// WaitlistModal tracks whether a session has the waitlist modal open, so the
// modal can be triggered from anywhere and its state recovered on reload.
type WaitlistModal struct {
	kv       KV
	recorder *analytics.Recorder
	ttl      time.Duration
}

// NewWaitlistModal panics on nil dependencies: the modal store is wired once
// at startup and a nil here is a programming error, not a runtime condition.
func NewWaitlistModal(kv KV, recorder *analytics.Recorder, ttl time.Duration) *WaitlistModal {
	if kv == nil {
		panic("uistate: nil kv")
	}
	if recorder == nil {
		panic("uistate: nil recorder")
	}
	return &WaitlistModal{kv: kv, recorder: recorder, ttl: ttl}
}

// Open marks the modal open for the session and records the open event with
// its placement (which surface triggered it).
func (w *WaitlistModal) Open(ctx context.Context, sessionID, placement string) error {
	if sessionID == "" {
		return errors.New("uistate: session id is required")
	}
	if placement == "" {
		placement = "global"
	}
	if err := w.kv.Set(ctx, modalKeyPrefix+sessionID, placement, w.ttl); err != nil {
		return fmt.Errorf("uistate: open waitlist modal: %w", err)
	}
	w.recorder.Track("waitlist_open", analytics.Context{
		SessionID: sessionID,
		Params:    map[string]any{"placement": placement},
	})
	return nil
}

func (w *WaitlistModal) Close(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("uistate: session id is required")
	}
	if err := w.kv.Del(ctx, modalKeyPrefix+sessionID); err != nil {
		return fmt.Errorf("uistate: close waitlist modal: %w", err)
	}
	return nil
}

// IsOpen reports the flag and, when open, the placement that opened it.
func (w *WaitlistModal) IsOpen(ctx context.Context, sessionID string) (bool, string, error) {
	placement, err := w.kv.Get(ctx, modalKeyPrefix+sessionID)
	if errors.Is(err, cacheredis.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("uistate: read waitlist modal: %w", err)
	}
	return true, placement, nil
}
