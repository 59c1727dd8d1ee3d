package otrs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"3tcapital/otrs_connector/internal/core/ticket"
	"3tcapital/otrs_connector/internal/infrastructure/cache"
	ctxutil "3tcapital/otrs_connector/internal/infrastructure/context"
)

// HTTPClient interface allows using both standard and traced HTTP clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	BaseURL  string
	Login    string
	Password string
	// ReadTimeout is the per-call network timeout of the owning client. A session is not
	// reused once it has less than this left to live.
	ReadTimeout time.Duration
	// SessionTTL is the lifetime OTRS grants a session. Zero means cache.DefaultTTL.
	SessionTTL time.Duration
	// SessionID and SessionCreatedAt resume a session obtained earlier. Both or neither.
	SessionID        string
	SessionCreatedAt time.Time
	// AuthRetries is how many times SessionCreate is retried on transient failures.
	AuthRetries int
}

// SessionManager hands out OTRS session IDs, creating a new session when the cached one
// is missing or too close to expiry.
type SessionManager struct {
	baseURL       string
	login         string
	password      string
	authRetries   uint64
	retryInterval time.Duration
	cache         *cache.TokenCache
	client        HTTPClient
	log           *slog.Logger
	creating      *semaphore.Weighted // Serializes SessionCreate so concurrent misses authenticate once
}

type sessionCreateRequest struct {
	UserLogin string `json:"UserLogin"`
	Password  string `json:"Password"`
}

type sessionCreateResponse struct {
	SessionID string     `json:"SessionID"`
	Error     *otrsError `json:"Error,omitempty"`
}

// NewSessionManager creates a session manager with its own token cache.
// Extra cache options are applied after the ones derived from cfg.
func NewSessionManager(cfg SessionConfig, client HTTPClient, log *slog.Logger, opts ...cache.Option) (*SessionManager, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", cache.ErrInvalidArgument)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: http client is required", cache.ErrInvalidArgument)
	}

	cacheOpts := []cache.Option{cache.WithTTL(cfg.SessionTTL)}
	if cfg.SessionID != "" || !cfg.SessionCreatedAt.IsZero() {
		cacheOpts = append(cacheOpts, cache.WithSession(cfg.SessionID, cfg.SessionCreatedAt))
	}
	cacheOpts = append(cacheOpts, opts...)

	tokenCache, err := cache.NewTokenCache(cfg.ReadTimeout, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}

	retries := cfg.AuthRetries
	if retries < 0 {
		retries = 0
	}

	if cfg.SessionID != "" {
		log.Info("Resuming OTRS session", "created_at", cfg.SessionCreatedAt, "session_ttl", tokenCache.TTL())
	}

	return &SessionManager{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		login:         cfg.Login,
		password:      cfg.Password,
		authRetries:   uint64(retries),
		retryInterval: 250 * time.Millisecond,
		cache:         tokenCache,
		client:        client,
		log:           log,
		creating:      semaphore.NewWeighted(1),
	}, nil
}

// SessionID returns a usable session ID, creating a new session if necessary.
func (m *SessionManager) SessionID(ctx context.Context) (string, error) {
	if id, ok := m.cache.Get(); ok {
		return id, nil
	}

	if err := m.creating.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for session creation: %w", err)
	}
	defer m.creating.Release(1)

	// Another goroutine may have created the session while we waited.
	if id, ok := m.cache.Get(); ok {
		return id, nil
	}

	id, err := m.createSessionWithRetry(ctx)
	if err != nil {
		m.log.Error("OTRS session creation failed", "login", m.login, "error", err)
		return "", fmt.Errorf("otrs authentication failed: %w", err)
	}

	m.cache.Set(id)
	m.log.Debug("OTRS session created and cached", "session_ttl", m.cache.TTL(), "read_timeout", m.cache.ReadTimeout())

	return id, nil
}

// Invalidate drops the cached session, forcing a new SessionCreate on next use.
func (m *SessionManager) Invalidate() {
	m.cache.Clear()
	m.log.Debug("OTRS session invalidated")
}

// InvalidateIf drops the cached session only if it is still sessionID, so a session
// another caller already refreshed survives.
func (m *SessionManager) InvalidateIf(sessionID string) {
	if m.cache.ClearIf(sessionID) {
		m.log.Debug("OTRS session invalidated")
	}
}

// Logout forgets the current session. OTRS GenericInterface offers no remote session delete.
func (m *SessionManager) Logout() {
	m.Invalidate()
}

// RemainingLife returns the cached session's remaining lifetime without refreshing it.
func (m *SessionManager) RemainingLife() (time.Duration, bool) {
	return m.cache.RemainingLife()
}

// Status reports whether a session is cached and how long it has left.
func (m *SessionManager) Status() ticket.SessionStatus {
	status := ticket.SessionStatus{TTLSecs: int64(m.cache.TTL().Seconds())}
	remaining, ok := m.cache.RemainingLife()
	if !ok {
		return status
	}
	status.Active = remaining > 0
	status.RemainingLife = remaining
	status.RemainingSecs = int64(remaining.Seconds())
	return status
}

func (m *SessionManager) createSessionWithRetry(ctx context.Context) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.retryInterval
	policy.MaxInterval = 5 * time.Second

	var sessionID string
	attempt := 0
	operation := func() error {
		attempt++
		id, err := m.createSession(ctx)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			m.log.Warn("OTRS session creation attempt failed", "attempt", attempt, "error", err)
			return err
		}
		sessionID = id
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, m.authRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return "", err
	}
	return sessionID, nil
}

// createSession performs the SessionCreate operation.
func (m *SessionManager) createSession(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/Session", m.baseURL)

	jsonData, err := json.Marshal(sessionCreateRequest{
		UserLogin: m.login,
		Password:  m.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx = ctxutil.WithOperation(ctx, "SessionCreate")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			Operation:  "SessionCreate",
			Code:       "HTTP",
			Message:    truncate(string(body), 256),
			StatusCode: resp.StatusCode,
		}
	}

	var parsed sessionCreateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", parsed.Error.toAPIError("SessionCreate", resp.StatusCode)
	}

	sessionID := strings.TrimSpace(parsed.SessionID)
	if sessionID == "" {
		return "", fmt.Errorf("empty session id in response")
	}

	return sessionID, nil
}
