package audit

import (
	"context"
	"encoding/json"
	"time"
)

// ProviderAuditLog is one outbound call to a provider such as OTRS. Bodies and URLs
// are stored after sanitization, so session IDs and passwords never reach storage.
type ProviderAuditLog struct {
	ID              int64
	CorrelationID   string
	Provider        string
	Operation       string
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	CreatedAt       time.Time
}

// Repository defines the contract for persisting and retrieving audit logs.
type Repository interface {
	// Save persists an audit log entry to storage.
	Save(ctx context.Context, log ProviderAuditLog) error

	// FindByCorrelationID retrieves all audit logs associated with a correlation ID,
	// newest first.
	FindByCorrelationID(ctx context.Context, correlationID string) ([]ProviderAuditLog, error)
}
