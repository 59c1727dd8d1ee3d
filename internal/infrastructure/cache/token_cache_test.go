package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by a cache under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func mustCache(t *testing.T, readTimeout time.Duration, opts ...Option) *TokenCache {
	t.Helper()
	c, err := NewTokenCache(readTimeout, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNewTokenCache(t *testing.T) {
	c := mustCache(t, 5*time.Second)

	if c.TTL() != DefaultTTL {
		t.Errorf("expected default ttl %v, got %v", DefaultTTL, c.TTL())
	}
	if c.ReadTimeout() != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", c.ReadTimeout())
	}
}

func TestNewTokenCache_InvalidArguments(t *testing.T) {
	tests := []struct {
		name        string
		readTimeout time.Duration
		opts        []Option
	}{
		{
			name:        "zero read timeout",
			readTimeout: 0,
		},
		{
			name:        "negative read timeout",
			readTimeout: -time.Second,
		},
		{
			name:        "negative ttl",
			readTimeout: time.Second,
			opts:        []Option{WithTTL(-time.Minute)},
		},
		{
			name:        "empty initial token",
			readTimeout: time.Second,
			opts:        []Option{WithSession("", time.Now())},
		},
		{
			name:        "initial token without creation time",
			readTimeout: time.Second,
			opts:        []Option{WithSession("abc", time.Time{})},
		},
		{
			name:        "nil clock",
			readTimeout: time.Second,
			opts:        []Option{WithClock(nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewTokenCache(tt.readTimeout, tt.opts...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if c != nil {
				t.Error("expected nil cache on error")
			}
		})
	}
}

func TestNewTokenCache_ZeroTTLUsesDefault(t *testing.T) {
	c := mustCache(t, time.Second, WithTTL(0))
	if c.TTL() != DefaultTTL {
		t.Errorf("expected default ttl %v, got %v", DefaultTTL, c.TTL())
	}
}

func TestTokenCache_Empty(t *testing.T) {
	c := mustCache(t, time.Second, WithTTL(time.Hour))

	if token, ok := c.Get(); ok || token != "" {
		t.Errorf("expected empty cache, got %q", token)
	}
	if _, ok := c.RemainingLife(); ok {
		t.Error("expected no remaining life on empty cache")
	}
}

func TestTokenCache_Get(t *testing.T) {
	const (
		ttl         = time.Hour
		readTimeout = 10 * time.Second
	)

	tests := []struct {
		name        string
		age         time.Duration
		expectedOk  bool
		expectedTok string
	}{
		{
			name:        "fresh token",
			age:         0,
			expectedOk:  true,
			expectedTok: "seeded",
		},
		{
			name:        "remaining life exactly read timeout",
			age:         ttl - readTimeout,
			expectedOk:  true,
			expectedTok: "seeded",
		},
		{
			name: "remaining life below read timeout",
			age:  ttl - readTimeout/2,
		},
		{
			name: "remaining life exactly zero",
			age:  ttl,
		},
		{
			name: "fully expired",
			age:  ttl + time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := mustCache(t, readTimeout,
				WithTTL(ttl),
				WithClock(clock.Now),
				WithSession("seeded", clock.Now().Add(-tt.age)),
			)

			token, ok := c.Get()
			if ok != tt.expectedOk {
				t.Errorf("expected ok=%v, got %v", tt.expectedOk, ok)
			}
			if token != tt.expectedTok {
				t.Errorf("expected token %q, got %q", tt.expectedTok, token)
			}

			_, hasToken := c.RemainingLife()
			if hasToken != tt.expectedOk {
				t.Errorf("expected stored token=%v after Get, got %v", tt.expectedOk, hasToken)
			}
		})
	}
}

func TestTokenCache_Set(t *testing.T) {
	clock := newFakeClock()
	c := mustCache(t, 5*time.Second, WithClock(clock.Now))

	c.Set("T")

	token, ok := c.Get()
	if !ok {
		t.Fatal("expected token to be retrievable after Set")
	}
	if token != "T" {
		t.Errorf("expected token %q, got %q", "T", token)
	}

	remaining, ok := c.RemainingLife()
	if !ok {
		t.Fatal("expected remaining life after Set")
	}
	if remaining != DefaultTTL {
		t.Errorf("expected remaining life %v, got %v", DefaultTTL, remaining)
	}
}

func TestTokenCache_SetRefreshesTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := mustCache(t, time.Second, WithTTL(time.Minute), WithClock(clock.Now))

	c.Set("first")
	clock.Advance(50 * time.Second)
	c.Set("second")
	clock.Advance(50 * time.Second)

	token, ok := c.Get()
	if !ok || token != "second" {
		t.Errorf("expected refreshed token %q, got %q (ok=%v)", "second", token, ok)
	}
}

func TestTokenCache_SetEmptyClears(t *testing.T) {
	c := mustCache(t, time.Second)
	c.Set("token")
	c.Set("")

	if _, ok := c.Get(); ok {
		t.Error("expected empty token to clear the cache")
	}
	if _, ok := c.RemainingLife(); ok {
		t.Error("expected no remaining life after empty Set")
	}
}

func TestTokenCache_Clear(t *testing.T) {
	c := mustCache(t, time.Second)
	c.Set("test-token")

	c.Clear()
	c.Clear()

	if token, ok := c.Get(); ok {
		t.Errorf("expected token to be cleared, but got %q", token)
	}

	empty := mustCache(t, time.Second)
	empty.Clear()
	if _, ok := empty.Get(); ok {
		t.Error("expected empty cache to stay empty after Clear")
	}
}

func TestTokenCache_ClearIf(t *testing.T) {
	tests := []struct {
		name        string
		cached      string
		clearToken  string
		wantCleared bool
	}{
		{name: "matching token", cached: "fresh", clearToken: "fresh", wantCleared: true},
		{name: "replaced token", cached: "fresh", clearToken: "stale", wantCleared: false},
		{name: "empty argument", cached: "fresh", clearToken: "", wantCleared: false},
		{name: "empty cache", cached: "", clearToken: "stale", wantCleared: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustCache(t, time.Second)
			c.Set(tt.cached)

			if got := c.ClearIf(tt.clearToken); got != tt.wantCleared {
				t.Errorf("expected ClearIf to return %v, got %v", tt.wantCleared, got)
			}

			token, ok := c.Get()
			if tt.cached != "" && ok == tt.wantCleared {
				t.Errorf("unexpected cache state after ClearIf: token=%q ok=%v", token, ok)
			}
		})
	}
}

func TestTokenCache_RemainingLifeIsReadOnly(t *testing.T) {
	clock := newFakeClock()
	c := mustCache(t, time.Second, WithTTL(time.Minute), WithClock(clock.Now))
	c.Set("token")
	clock.Advance(2 * time.Minute)

	remaining, ok := c.RemainingLife()
	if !ok {
		t.Fatal("expected RemainingLife to report the stored token")
	}
	if remaining != -time.Minute {
		t.Errorf("expected remaining life -1m, got %v", remaining)
	}

	// Still stored until Get observes the expiry.
	if _, ok := c.RemainingLife(); !ok {
		t.Error("expected RemainingLife not to clear the token")
	}
	if _, ok := c.Get(); ok {
		t.Error("expected expired token to be rejected")
	}
	if _, ok := c.RemainingLife(); ok {
		t.Error("expected Get to clear the expired token")
	}
}

func TestTokenCache_ReadTimeoutMarginScenario(t *testing.T) {
	clock := newFakeClock()
	c := mustCache(t, 5*time.Second, WithClock(clock.Now))

	c.Set("XYZ")

	clock.Advance(10 * time.Second)
	if token, ok := c.Get(); !ok || token != "XYZ" {
		t.Fatalf("expected %q at t0+10s, got %q (ok=%v)", "XYZ", token, ok)
	}

	// t0+28796s: 4s left, less than the 5s read timeout.
	clock.Advance(28786 * time.Second)
	if token, ok := c.Get(); ok {
		t.Fatalf("expected no token at t0+28796s, got %q", token)
	}

	clock.Advance(time.Second)
	if token, ok := c.Get(); ok {
		t.Fatalf("expected cache to stay cleared at t0+28797s, got %q", token)
	}
}

func TestTokenCache_ResumedSessionExpired(t *testing.T) {
	clock := newFakeClock()
	ttl := 30 * time.Minute
	c := mustCache(t, time.Second,
		WithTTL(ttl),
		WithClock(clock.Now),
		WithSession("old", clock.Now().Add(-ttl-time.Second)),
	)

	if token, ok := c.Get(); ok {
		t.Errorf("expected expired session to be dropped, got %q", token)
	}
	if _, ok := c.RemainingLife(); ok {
		t.Error("expected cache to be empty after expired Get")
	}
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	c := mustCache(t, time.Millisecond, WithTTL(time.Hour))
	const numGoroutines = 50
	const numOps = 200

	written := make(map[string]struct{}, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		written[fmt.Sprintf("token-%d", i)] = struct{}{}
	}

	var wg sync.WaitGroup
	errs := make(chan string, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			own := fmt.Sprintf("token-%d", id)
			for j := 0; j < numOps; j++ {
				switch j % 3 {
				case 0:
					c.Set(own)
				case 1:
					if token, ok := c.Get(); ok {
						if _, known := written[token]; !known {
							errs <- token
						}
					}
				default:
					c.Clear()
				}
				if remaining, ok := c.RemainingLife(); ok && remaining > time.Hour {
					errs <- fmt.Sprintf("remaining life %v exceeds ttl", remaining)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for e := range errs {
		t.Errorf("unexpected observation: %s", e)
	}
}

func TestTokenCache_ConcurrentExpiry(t *testing.T) {
	clock := newFakeClock()
	c := mustCache(t, time.Second, WithTTL(time.Minute), WithClock(clock.Now))
	c.Set("token")
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	hits := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Get(); ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if hits != 0 {
		t.Errorf("expected no goroutine to observe the expired token, got %d", hits)
	}
}
