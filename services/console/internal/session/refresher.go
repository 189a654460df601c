package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"pumpconsole/pkg/domain"
)

const (
	DefaultRefreshInterval = 10 * time.Minute
	refreshTimeout         = 15 * time.Second
)

// TokenService exchanges a refresh token for a new session.
type TokenService interface {
	RefreshToken(ctx context.Context, refreshToken string) (domain.Session, error)
}

// Credential is the bearer credential holder of the backend client.
type Credential interface {
	SetToken(token string)
	ClearToken()
}

// OutcomeRecorder counts refresh outcomes.
type OutcomeRecorder interface {
	RefreshOutcome(outcome string)
}

type RefresherConfig struct {
	Store      Store
	Tokens     TokenService
	Credential Credential
	Lookahead  time.Duration
	Metrics    OutcomeRecorder
	Now        func() time.Time
}

// Refresher keeps the stored session fresh. Concurrent refresh triggers share
// one backend call.
type Refresher struct {
	store      Store
	tokens     TokenService
	credential Credential
	lookahead  time.Duration
	metrics    OutcomeRecorder
	now        func() time.Time
	group      singleflight.Group
}

func NewRefresher(cfg RefresherConfig) *Refresher {
	lookahead := cfg.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Refresher{
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		credential: cfg.Credential,
		lookahead:  lookahead,
		metrics:    cfg.Metrics,
		now:        now,
	}
}

// Store returns the underlying session store.
func (r *Refresher) Store() Store {
	return r.store
}

// NeedsRefresh applies the configured lookahead.
func (r *Refresher) NeedsRefresh(s domain.Session) bool {
	return needsRefresh(s, r.now(), r.lookahead)
}

// CheckAndRefresh reports whether a usable session exists, refreshing it
// first when it is about to expire. A failed refresh clears the stored user
// and session.
func (r *Refresher) CheckAndRefresh(ctx context.Context) (bool, error) {
	snap, ok, err := r.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		r.recordOutcome("skipped")
		return false, nil
	}
	if !r.NeedsRefresh(snap.Session) {
		r.credential.SetToken(snap.Session.AccessToken)
		return true, nil
	}
	return r.refresh(ctx)
}

// ForceRefresh refreshes regardless of expiry, e.g. after the backend
// rejected the current access token.
func (r *Refresher) ForceRefresh(ctx context.Context) (bool, error) {
	return r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) (bool, error) {
	v, err, _ := r.group.Do("refresh", func() (any, error) {
		// Detached so a cancelled caller does not turn into a logout.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return r.doRefresh(rctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Refresher) doRefresh(ctx context.Context) (bool, error) {
	snap, ok, err := r.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}
	next, err := r.tokens.RefreshToken(ctx, snap.Session.RefreshToken)
	if err != nil {
		audit("token_refresh", "failure", "user_id", snap.User.ID, "err", err)
		r.recordOutcome("failure")
		r.credential.ClearToken()
		if clearErr := r.store.Clear(ctx); clearErr != nil {
			slog.Error("clear session after failed refresh", "err", clearErr)
			return false, fmt.Errorf("clear session: %w", clearErr)
		}
		return false, nil
	}
	next = Complete(next)
	if next.RefreshToken == "" {
		next.RefreshToken = snap.Session.RefreshToken
	}
	if err := r.store.Save(ctx, snap.User, next); err != nil {
		r.recordOutcome("failure")
		return false, fmt.Errorf("save refreshed session: %w", err)
	}
	r.credential.SetToken(next.AccessToken)
	r.recordOutcome("success")
	audit("token_refresh", "success", "user_id", snap.User.ID, "expires_at", next.ExpiresAt)
	return true, nil
}

// Run re-checks the session every interval until ctx is done. onExpired is
// called once if a check finds the session gone or unrefreshable, after
// which Run returns.
func (r *Refresher) Run(ctx context.Context, interval time.Duration, onExpired func()) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.CheckAndRefresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("periodic session check failed", "err", err)
				continue
			}
			if !ok {
				if onExpired != nil {
					onExpired()
				}
				return
			}
		}
	}
}

func (r *Refresher) recordOutcome(outcome string) {
	if r.metrics != nil {
		r.metrics.RefreshOutcome(outcome)
	}
}

func audit(event, outcome string, attrs ...any) {
	logAttrs := []any{"event", event, "outcome", outcome}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
