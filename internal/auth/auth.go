package auth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
)

var ErrEmptyToken = errors.New("login returned an empty token")

// LoginFunc performs an anonymous login. expiresIn is the server-reported
// lifetime; zero means unknown.
type LoginFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

type credential struct {
	token     string
	expiresAt time.Time
}

// SessionCache holds the single bearer credential for the process.
type SessionCache struct {
	login  LoginFunc
	margin time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cred  *credential
	group singleflight.Group
}

// NewSessionCache returns a cache that refreshes through login. margin is
// subtracted from the server lifetime before storing.
func NewSessionCache(login LoginFunc, margin time.Duration) *SessionCache {
	return &SessionCache{login: login, margin: margin, now: time.Now}
}

// Token returns the cached token while it is unexpired, otherwise logs in.
// Concurrent callers that miss share one login.
func (c *SessionCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	ch := c.group.DoChan("login", func() (interface{}, error) {
		// a caller that lost the race may find a fresh token here
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached credential, e.g. after the upstream answered 401.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

// ExpiresAt reports the cached credential's expiry, zero when empty.
func (c *SessionCache) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return time.Time{}
	}
	return c.cred.expiresAt
}

func (c *SessionCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil || !c.now().Before(c.cred.expiresAt) {
		return "", false
	}
	return c.cred.token, true
}

func (c *SessionCache) refresh(ctx context.Context) (string, error) {
	tok, expiresIn, err := c.login(ctx)
	if err == nil && tok == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		metrics.SessionLogins.WithLabelValues("failure").Inc()
		c.Invalidate()
		return "", err
	}
	metrics.SessionLogins.WithLabelValues("success").Inc()

	now := c.now()
	var expiresAt time.Time
	if expiresIn > 0 {
		expiresAt = now.Add(expiresIn)
	} else if exp, ok := TokenExpiry(tok); ok {
		expiresAt = exp
	} else {
		log.Printf("[auth] login gave no lifetime and token carries no exp claim; not caching")
		c.Invalidate()
		return tok, nil
	}
	expiresAt = expiresAt.Add(-c.margin)

	c.mu.Lock()
	c.cred = &credential{token: tok, expiresAt: expiresAt}
	c.mu.Unlock()
	log.Printf("[auth] session refreshed, valid until %s", expiresAt.UTC().Format(time.RFC3339))
	return tok, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
