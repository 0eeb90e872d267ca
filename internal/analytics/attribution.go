package analytics

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

const attributionKeyPrefix = "probable:utm:"

var utmParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// KV is the slice of the cache client attribution needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Attribution captures UTM parameters once per session and merges them into
// every subsequent event. Capture-once: a later visit with different UTM tags
// does not overwrite the original attribution.
type Attribution struct {
	kv  KV
	ttl time.Duration
}

func NewAttribution(kv KV, sessionTTL time.Duration) *Attribution {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &Attribution{kv: kv, ttl: sessionTTL}
}

// Capture extracts utm_* params from a request query and stores them for the
// session if none were stored yet. Best-effort: storage errors are ignored.
func (a *Attribution) Capture(ctx context.Context, sessionID string, query url.Values) {
	if a == nil || a.kv == nil || sessionID == "" {
		return
	}
	utm := map[string]string{}
	for _, p := range utmParams {
		if v := query.Get(p); v != "" {
			utm[p] = v
		}
	}
	if len(utm) == 0 {
		return
	}
	raw, err := json.Marshal(utm)
	if err != nil {
		return
	}
	_, _ = a.kv.SetNX(ctx, attributionKeyPrefix+sessionID, string(raw), a.ttl)
}

// Lookup returns the captured attribution for a session, or nil.
func (a *Attribution) Lookup(ctx context.Context, sessionID string) map[string]string {
	if a == nil || a.kv == nil || sessionID == "" {
		return nil
	}
	raw, err := a.kv.Get(ctx, attributionKeyPrefix+sessionID)
	if err != nil || raw == "" {
		return nil
	}
	var utm map[string]string
	if err := json.Unmarshal([]byte(raw), &utm); err != nil {
		return nil
	}
	return utm
}
