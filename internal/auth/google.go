// Package auth implements the Google OAuth sign-in hop for the marketing
// site: start a flow with a single-use state nonce, exchange the callback
// code, and hand the tokens to the product app via redirect.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	cacheredis "probable/internal/cache/redis"
	"probable/internal/config"
)

const stateKeyPrefix = "probable:auth:state:"

// ErrInvalidState rejects callbacks whose state nonce is unknown or already
// consumed.
var ErrInvalidState = errors.New("auth: invalid or expired state")

// KV is the subset of the Redis client the flow needs. State nonces are read
// with GetDel so every nonce is single-use.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

type Flow struct {
	oauth    *oauth2.Config
	kv       KV
	logger   *zap.Logger
	stateTTL time.Duration

	// Fallback landing page in the product app when the caller did not
	// register an explicit redirect target.
	productAppURL string
}

type stateRecord struct {
	Redirect string `json:"redirect,omitempty"`
}

func NewFlow(cfg config.AuthConfig, kv KV, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Flow{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		kv:            kv,
		logger:        logger,
		stateTTL:      ttl,
		productAppURL: cfg.ProductAppURL,
	}
}

// Start stores the caller's redirect target under a fresh state nonce and
// returns the Google consent URL to send the browser to.
func (f *Flow) Start(ctx context.Context, redirectTarget string) (string, error) {
	state := uuid.NewString()
	raw, err := json.Marshal(stateRecord{Redirect: redirectTarget})
	if err != nil {
		return "", fmt.Errorf("auth: encode state: %w", err)
	}
	if err := f.kv.Set(ctx, stateKeyPrefix+state, string(raw), f.stateTTL); err != nil {
		return "", fmt.Errorf("auth: store state: %w", err)
	}
	return f.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Complete validates the state nonce, exchanges the authorization code, and
// returns the URL the browser should land on with the tokens attached. The
// caller redirects there regardless of which branch produced it.
func (f *Flow) Complete(ctx context.Context, state, code string) (string, error) {
	raw, err := f.kv.GetDel(ctx, stateKeyPrefix+state)
	if errors.Is(err, cacheredis.ErrNotFound) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("auth: read state: %w", err)
	}
	var rec stateRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", ErrInvalidState
	}

	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: code exchange: %w", err)
	}
	return f.landingURL(rec.Redirect, token)
}

// FailureURL is where the browser goes when the provider reported an error or
// the exchange failed.
func (f *Flow) FailureURL() string {
	return f.productAppURL + "/signin?error=auth_failed"
}

func (f *Flow) landingURL(redirectTarget string, token *oauth2.Token) (string, error) {
	target := redirectTarget
	if target == "" {
		target = f.productAppURL + "/auth/callback"
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("auth: bad redirect target: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token.AccessToken)
	if token.RefreshToken != "" {
		q.Set("refresh_token", token.RefreshToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
