package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the lifetime OTRS grants a session unless configured otherwise.
const DefaultTTL = 8 * time.Hour

// ErrInvalidArgument is returned by NewTokenCache when an argument is out of range.
var ErrInvalidArgument = errors.New("invalid argument")

// TokenCache holds a single session token and decides whether it is still safe to hand out.
// A token is only returned while its remaining life is at least one read timeout, so it
// cannot expire in the middle of the call that is about to use it.
type TokenCache struct {
	mu          sync.Mutex
	token       string
	createdAt   time.Time
	ttl         time.Duration
	readTimeout time.Duration
	now         func() time.Time
}

// Option configures a TokenCache at construction time.
type Option func(*TokenCache) error

// WithTTL sets the total lifetime of a token. Zero keeps DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *TokenCache) error {
		if ttl < 0 {
			return fmt.Errorf("%w: ttl %s must be positive", ErrInvalidArgument, ttl)
		}
		if ttl > 0 {
			c.ttl = ttl
		}
		return nil
	}
}

// WithSession seeds the cache with a previously obtained token, e.g. to resume a session.
func WithSession(token string, createdAt time.Time) Option {
	return func(c *TokenCache) error {
		if token == "" {
			return fmt.Errorf("%w: initial token must not be empty", ErrInvalidArgument)
		}
		if createdAt.IsZero() {
			return fmt.Errorf("%w: initial token requires a creation time", ErrInvalidArgument)
		}
		c.token = token
		c.createdAt = createdAt
		return nil
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCache) error {
		if now == nil {
			return fmt.Errorf("%w: clock must not be nil", ErrInvalidArgument)
		}
		c.now = now
		return nil
	}
}

// NewTokenCache creates a token cache. readTimeout is the longest a single remote call may take.
func NewTokenCache(readTimeout time.Duration, opts ...Option) (*TokenCache, error) {
	if readTimeout <= 0 {
		return nil, fmt.Errorf("%w: read timeout %s must be positive", ErrInvalidArgument, readTimeout)
	}

	c := &TokenCache{
		ttl:         DefaultTTL,
		readTimeout: readTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RemainingLife returns how long the stored token has left. The duration is negative once the
// token has expired. Returns false when no token is stored.
func (c *TokenCache) RemainingLife() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		return 0, false
	}
	return c.remainingLocked(), true
}

// Get returns the cached token if it is still usable. An expired token, or one that would
// expire within the read timeout, is cleared and reported as absent.
func (c *TokenCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		return "", false
	}

	remaining := c.remainingLocked()
	if remaining <= 0 || remaining < c.readTimeout {
		c.clearLocked()
		return "", false
	}

	return c.token, true
}

// Set stores token stamped with the current time, replacing any previous one.
// An empty token empties the cache.
func (c *TokenCache) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" {
		c.clearLocked()
		return
	}
	c.token = token
	c.createdAt = c.now()
}

// Clear removes the cached token. Safe to call on an empty cache.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
}

// ClearIf removes the cached token only if it equals token, and reports whether it did.
func (c *TokenCache) ClearIf(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" || c.token != token {
		return false
	}
	c.clearLocked()
	return true
}

// TTL returns the configured token lifetime.
func (c *TokenCache) TTL() time.Duration {
	return c.ttl
}

// ReadTimeout returns the safety margin applied by Get.
func (c *TokenCache) ReadTimeout() time.Duration {
	return c.readTimeout
}

func (c *TokenCache) remainingLocked() time.Duration {
	return c.ttl - c.now().Sub(c.createdAt)
}

func (c *TokenCache) clearLocked() {
	c.token = ""
	c.createdAt = time.Time{}
}
