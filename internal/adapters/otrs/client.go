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
	"net/url"
	"strconv"
	"strings"
	"time"

	"3tcapital/otrs_connector/internal/core/ticket"
	ctxutil "3tcapital/otrs_connector/internal/infrastructure/context"
)

// ClientConfig configures the OTRS ticket client.
type ClientConfig struct {
	BaseURL               string
	MaxConcurrentRequests int
	RateLimitRPS          int
}

// Client implements ticket.Provider against the OTRS GenericInterface REST connector.
type Client struct {
	baseURL        string
	session        *SessionManager
	httpClient     HTTPClient
	log            *slog.Logger
	limiter        *RequestLimiter
	circuitBreaker *CircuitBreaker
}

// NewClient creates a new OTRS ticket client sharing the given session manager.
func NewClient(cfg ClientConfig, session *SessionManager, httpClient HTTPClient, log *slog.Logger) *Client {
	if err := ValidateLimiterConfig(cfg.MaxConcurrentRequests, cfg.RateLimitRPS); err != nil {
		log.Warn("Invalid OTRS limiter config, using defaults", "error", err)
		cfg.MaxConcurrentRequests = 50
		cfg.RateLimitRPS = 0
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		session:        session,
		httpClient:     httpClient,
		log:            log,
		limiter:        NewRequestLimiter(cfg.MaxConcurrentRequests, cfg.RateLimitRPS),
		circuitBreaker: NewCircuitBreaker(10, 0.5, 30*time.Second, isTransportFailure),
	}
}

// isTransportFailure reports whether err means OTRS itself is unhealthy. Business errors
// returned in a well-formed payload do not trip the breaker.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

// TicketGet retrieves a ticket by ID.
func (c *Client) TicketGet(ctx context.Context, id int64, opts ticket.GetOptions) (*ticket.Ticket, error) {
	query := url.Values{}
	if opts.AllArticles {
		query.Set("AllArticles", "1")
	}
	if opts.Attachments {
		query.Set("Attachments", "1")
	}
	if opts.DynamicFields {
		query.Set("DynamicFields", "1")
	}

	var resp ticketGetResponse
	path := "/Ticket/" + strconv.FormatInt(id, 10)
	if err := c.call(ctx, "TicketGet", http.MethodGet, path, query, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || strings.HasSuffix(apiErr.Code, ".NotValid")) {
			return nil, fmt.Errorf("%w: %d", ticket.ErrNotFound, id)
		}
		return nil, err
	}

	if len(resp.Ticket) == 0 {
		return nil, fmt.Errorf("%w: %d", ticket.ErrNotFound, id)
	}

	t := resp.Ticket[0].toDomain()
	c.log.Debug("OTRS ticket retrieved", "ticket_id", t.ID, "articles", len(t.Articles))
	return &t, nil
}

// TicketSearch returns the IDs of tickets matching query.
func (c *Client) TicketSearch(ctx context.Context, q ticket.SearchQuery) ([]int64, error) {
	payload := map[string]any{}
	if len(q.TicketIDs) > 0 {
		payload["TicketID"] = formatIDs(q.TicketIDs)
	}
	if q.TicketNumber != "" {
		payload["TicketNumber"] = q.TicketNumber
	}
	if q.Title != "" {
		payload["Title"] = q.Title
	}
	if len(q.QueueIDs) > 0 {
		payload["QueueIDs"] = formatIDs(q.QueueIDs)
	}
	if len(q.StateIDs) > 0 {
		payload["StateIDs"] = formatIDs(q.StateIDs)
	}
	if len(q.States) > 0 {
		payload["States"] = q.States
	}
	if q.CustomerUserLogin != "" {
		payload["CustomerUserLogin"] = q.CustomerUserLogin
	}
	if q.Limit > 0 {
		payload["Limit"] = q.Limit
	}

	var resp ticketSearchResponse
	if err := c.call(ctx, "TicketSearch", http.MethodPost, "/TicketSearch", nil, payload, &resp); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(resp.TicketID))
	for _, id := range resp.TicketID {
		ids = append(ids, int64(id))
	}
	return ids, nil
}

// TicketCreate opens a ticket with its first article.
func (c *Client) TicketCreate(ctx context.Context, t ticket.Ticket, a ticket.Article) (*ticket.CreateResult, error) {
	payload := map[string]any{
		"Ticket":  ticketPayload(t),
		"Article": articlePayload(a),
	}
	if len(t.DynamicField) > 0 {
		payload["DynamicField"] = dynamicFieldPayload(t.DynamicField)
	}
	if len(a.Attachments) > 0 {
		payload["Attachment"] = attachmentPayload(a.Attachments)
	}

	var resp ticketWriteResponse
	if err := c.call(ctx, "TicketCreate", http.MethodPost, "/Ticket", nil, payload, &resp); err != nil {
		return nil, err
	}
	if resp.TicketID == 0 {
		return nil, fmt.Errorf("otrs TicketCreate returned no ticket id")
	}

	c.log.Info("OTRS ticket created", "ticket_id", int64(resp.TicketID), "ticket_number", resp.TicketNumber)
	return &ticket.CreateResult{
		TicketID:     int64(resp.TicketID),
		TicketNumber: resp.TicketNumber,
		ArticleID:    int64(resp.ArticleID),
	}, nil
}

// TicketUpdate changes a ticket and optionally adds an article.
func (c *Client) TicketUpdate(ctx context.Context, id int64, t ticket.Ticket, a *ticket.Article) (*ticket.UpdateResult, error) {
	payload := map[string]any{
		"Ticket": ticketPayload(t),
	}
	if len(t.DynamicField) > 0 {
		payload["DynamicField"] = dynamicFieldPayload(t.DynamicField)
	}
	if a != nil {
		payload["Article"] = articlePayload(*a)
		if len(a.Attachments) > 0 {
			payload["Attachment"] = attachmentPayload(a.Attachments)
		}
	}

	var resp ticketWriteResponse
	path := "/Ticket/" + strconv.FormatInt(id, 10)
	if err := c.call(ctx, "TicketUpdate", http.MethodPatch, path, nil, payload, &resp); err != nil {
		return nil, err
	}

	c.log.Info("OTRS ticket updated", "ticket_id", id)
	return &ticket.UpdateResult{
		TicketID:     int64(resp.TicketID),
		TicketNumber: resp.TicketNumber,
		ArticleID:    int64(resp.ArticleID),
	}, nil
}

// Status reports the state of the shared OTRS session.
func (c *Client) Status() ticket.SessionStatus {
	return c.session.Status()
}

// Invalidate drops the shared OTRS session.
func (c *Client) Invalidate() {
	c.session.Invalidate()
}

// call performs one operation. If OTRS rejects the session, the session is invalidated and
// the operation retried once with a fresh one.
func (c *Client) call(ctx context.Context, operation, method, path string, query url.Values, payload map[string]any, out any) error {
	for attempt := 1; ; attempt++ {
		sessionID, err := c.session.SessionID(ctx)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		err = c.do(ctx, operation, method, path, query, payload, sessionID, out)
		var apiErr *APIError
		if attempt == 1 && errors.As(err, &apiErr) && apiErr.IsAuthFailure() {
			c.log.Warn("OTRS rejected session, re-authenticating", "operation", operation, "code", apiErr.Code, "status", apiErr.StatusCode)
			c.session.InvalidateIf(sessionID)
			continue
		}
		return err
	}
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, payload map[string]any, sessionID string, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire request slot: %w", err)
	}
	defer c.limiter.Release()

	return c.circuitBreaker.Execute(func() error {
		return c.roundTrip(ctx, operation, method, path, query, payload, sessionID, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, operation, method, path string, query url.Values, payload map[string]any, sessionID string, out any) error {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}

	var body io.Reader
	if payload != nil {
		withSession := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			withSession[k] = v
		}
		withSession["SessionID"] = sessionID

		jsonData, err := json.Marshal(withSession)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	} else {
		q.Set("SessionID", sessionID)
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctxutil.WithOperation(ctx, operation), method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Operation:  operation,
			Code:       "HTTP",
			Message:    truncate(string(data), 256),
			StatusCode: resp.StatusCode,
		}
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error.toAPIError(operation, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func formatIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}

var (
	_ ticket.Provider          = (*Client)(nil)
	_ ticket.SessionController = (*Client)(nil)
)
