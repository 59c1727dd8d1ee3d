package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"3tcapital/otrs_connector/internal/core/audit"
	ctxutil "3tcapital/otrs_connector/internal/infrastructure/context"
	"3tcapital/otrs_connector/internal/infrastructure/security"
)

const auditSaveTimeout = 10 * time.Second

// TracedClient wraps an HTTP client with request/response logging and an audit trail.
// Credentials and session IDs are redacted before anything is logged or stored.
type TracedClient struct {
	client       *http.Client
	log          *slog.Logger
	auditRepo    audit.Repository
	provider     string
	auditEnabled bool
	logReqBody   bool
	logRespBody  bool
	maxBodySize  int

	pending sync.WaitGroup
}

// TracedClientConfig holds configuration for the traced HTTP client.
type TracedClientConfig struct {
	Timeout         time.Duration
	AuditEnabled    bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
	MaxConnsPerHost int
}

// NewTracedClient creates a traced client for the named provider. auditRepo may be nil.
func NewTracedClient(cfg TracedClientConfig, log *slog.Logger, auditRepo audit.Repository, provider string) *TracedClient {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 100 * 1024
	}

	return &TracedClient{
		client: NewClient(&ClientConfig{
			Timeout:         cfg.Timeout,
			MaxConnsPerHost: cfg.MaxConnsPerHost,
		}),
		log:          log,
		auditRepo:    auditRepo,
		provider:     provider,
		auditEnabled: cfg.AuditEnabled && auditRepo != nil,
		logReqBody:   cfg.LogRequestBody,
		logRespBody:  cfg.LogResponseBody,
		maxBodySize:  cfg.MaxBodySize,
	}
}

// Do executes req, logging both directions and persisting an audit record asynchronously.
func (c *TracedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	correlationID := ctxutil.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set("X-Correlation-ID", correlationID)
	operation := c.operation(req)

	var requestBody []byte
	if req.Body != nil {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			c.log.Error("Failed to read request body for tracing", "error", err, "correlation_id", correlationID)
		}
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	c.logRequest(correlationID, operation, req, requestBody)

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	var responseBody []byte
	if resp != nil && resp.Body != nil {
		responseBody, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
	}

	c.logResponse(correlationID, operation, req, resp, err, duration, responseBody)

	if c.auditEnabled {
		entry := c.auditEntry(correlationID, operation, req, resp, err, duration, requestBody, responseBody)
		c.pending.Add(1)
		go c.persist(entry)
	}

	return resp, err
}

// Wait blocks until queued audit records are written.
func (c *TracedClient) Wait() {
	c.pending.Wait()
}

// persist runs detached from the request context, which is usually canceled by the time it runs.
func (c *TracedClient) persist(entry audit.ProviderAuditLog) {
	defer c.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic in audit log persistence", "panic", r, "correlation_id", entry.CorrelationID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), auditSaveTimeout)
	defer cancel()

	if err := c.auditRepo.Save(ctx, entry); err != nil {
		c.log.Error("Failed to persist audit log",
			"error", err,
			"correlation_id", entry.CorrelationID,
			"operation", entry.Operation,
			"provider", c.provider,
		)
		return
	}
	c.log.Debug("Audit log persisted", "correlation_id", entry.CorrelationID, "operation", entry.Operation)
}

func (c *TracedClient) auditEntry(correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, requestBody, responseBody []byte) audit.ProviderAuditLog {
	entry := audit.ProviderAuditLog{
		CorrelationID:  correlationID,
		Provider:       c.provider,
		Operation:      operation,
		RequestMethod:  req.Method,
		RequestURL:     security.SanitizeURL(req.URL.String()),
		RequestHeaders: security.SanitizeHeaders(req.Header),
		RequestBody:    security.SanitizeBody(requestBody, c.maxBodySize),
		DurationMs:     duration.Milliseconds(),
	}
	if resp != nil {
		status := resp.StatusCode
		entry.ResponseStatus = &status
		entry.ResponseHeaders = security.SanitizeHeaders(resp.Header)
		entry.ResponseBody = security.SanitizeBody(responseBody, c.maxBodySize)
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	return entry
}

func (c *TracedClient) logRequest(correlationID, operation string, req *http.Request, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"provider", c.provider,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
	}
	if c.logReqBody && len(body) > 0 {
		attrs = append(attrs, "request_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}
	c.log.Info("provider_request", attrs...)
}

func (c *TracedClient) logResponse(correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"provider", c.provider,
		"operation", operation,
		"method", req.Method,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.Error("provider_request_failed", attrs...)
		return
	}

	attrs = append(attrs, "status", resp.StatusCode, "response_size_bytes", len(body))
	if c.logRespBody && len(body) > 0 {
		attrs = append(attrs, "response_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	switch {
	case resp.StatusCode >= 500:
		c.log.Error("provider_response", attrs...)
	case resp.StatusCode >= 400:
		c.log.Warn("provider_response", attrs...)
	default:
		c.log.Info("provider_response", attrs...)
	}
}

// operation names the call for logs and audit. Callers normally set it on the context;
// otherwise it is inferred from the GenericInterface route.
func (c *TracedClient) operation(req *http.Request) string {
	if op := ctxutil.GetOperation(req.Context()); op != "" {
		return op
	}

	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	last := parts[len(parts)-1]
	prev := ""
	if len(parts) > 1 {
		prev = parts[len(parts)-2]
	}

	switch {
	case last == "Session" && req.Method == http.MethodPost:
		return "SessionCreate"
	case last == "TicketSearch":
		return "TicketSearch"
	case last == "Ticket" && req.Method == http.MethodPost:
		return "TicketCreate"
	case prev == "Ticket" && req.Method == http.MethodGet:
		return "TicketGet"
	case prev == "Ticket" && req.Method == http.MethodPatch:
		return "TicketUpdate"
	}
	return req.Method + "_" + c.provider
}

// Client returns the underlying HTTP client.
func (c *TracedClient) Client() *http.Client {
	return c.client
}
