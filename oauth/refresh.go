// Package oauth keeps the stored chat token fresh. It performs jittered checks
// of the token row and refreshes it when expiry falls within a configured window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/onnwee/chat-tender/db"
)

// TokenStore persists tokens per provider. *db.TokenStore implements it.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (db.Token, error)
	UpsertOAuthToken(ctx context.Context, provider string, tok db.Token) error
}

// RefreshFunc exchanges a refresh token for a new token.
type RefreshFunc func(ctx context.Context, refreshToken string) (db.Token, error)

// Refresher refreshes one provider's token.
type Refresher struct {
	Store    TokenStore
	Provider string
	// Window is the remaining lifetime below which the token is refreshed.
	Window  time.Duration
	Refresh RefreshFunc
	// OnRefresh, if set, receives every persisted token.
	OnRefresh func(db.Token)

	now func() time.Time
}

// Check refreshes the token if it is due. It reports whether a new token was stored.
func (r *Refresher) Check(ctx context.Context) (bool, error) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	window := r.Window
	if window <= 0 {
		window = 15 * time.Minute
	}

	cur, err := r.Store.GetOAuthToken(ctx, r.Provider)
	if err != nil {
		return false, err
	}
	if cur.RefreshToken == "" || cur.Expiry.Sub(now()) > window {
		return false, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	next, err := r.Refresh(ctx2, cur.RefreshToken)
	cancel()
	if err != nil {
		return false, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = cur.Scope
	}
	if err := r.Store.UpsertOAuthToken(ctx, r.Provider, next); err != nil {
		return false, err
	}
	if r.OnRefresh != nil {
		r.OnRefresh(next)
	}
	return true, nil
}

// Start launches a goroutine that calls Check every interval (with ±20%
// jitter) until ctx is done.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := slog.Default().With(slog.String("component", "oauth_refresh"), slog.String("provider", r.Provider))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int64N(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			nextSleep := interval + time.Duration(rand.Int64N(jitterRange*2+1)-jitterRange)
			if refreshed, err := r.Check(ctx); err != nil {
				log.Warn("token refresh failed", slog.Any("err", err))
			} else if refreshed {
				log.Info("token refreshed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

// StartRefresher is a shorthand for building a Refresher and starting it.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) *Refresher {
	r := &Refresher{Store: store, Provider: provider, Window: window, Refresh: fn}
	r.Start(ctx, interval)
	return r
}
