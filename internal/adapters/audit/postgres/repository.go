package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"3tcapital/otrs_connector/internal/core/audit"
)

const insertAuditLog = `
	INSERT INTO provider_audit_log (
		correlation_id, provider, operation, request_method, request_url,
		request_headers, request_body, response_status, response_headers,
		response_body, duration_ms, error_message
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const selectByCorrelationID = `
	SELECT id, correlation_id, provider, operation, request_method, request_url,
	       request_headers, request_body, response_status, response_headers,
	       response_body, duration_ms, COALESCE(error_message, ''), created_at
	FROM provider_audit_log
	WHERE correlation_id = $1
	ORDER BY created_at DESC
`

// Repository implements audit.Repository on PostgreSQL through database/sql.
type Repository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRepository creates a new PostgreSQL audit repository. log may be nil.
func NewRepository(db *sql.DB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// Save persists an audit log entry to the database.
func (r *Repository) Save(ctx context.Context, entry audit.ProviderAuditLog) error {
	requestHeaders, err := jsonText(entry.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	responseHeaders, err := jsonText(entry.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertAuditLog,
		entry.CorrelationID,
		entry.Provider,
		entry.Operation,
		entry.RequestMethod,
		entry.RequestURL,
		requestHeaders,
		rawText(entry.RequestBody),
		entry.ResponseStatus,
		responseHeaders,
		rawText(entry.ResponseBody),
		entry.DurationMs,
		entry.ErrorMessage,
	)
	if err != nil {
		if r.log != nil {
			r.log.Error("Failed to insert audit log",
				"correlation_id", entry.CorrelationID,
				"provider", entry.Provider,
				"operation", entry.Operation,
				"error", err,
			)
		}
		return fmt.Errorf("insert audit log: %w", err)
	}

	if r.log != nil {
		r.log.Debug("Audit log saved",
			"correlation_id", entry.CorrelationID,
			"operation", entry.Operation,
			"response_status", entry.ResponseStatus,
		)
	}
	return nil
}

// FindByCorrelationID retrieves all audit logs with the given correlation ID.
func (r *Repository) FindByCorrelationID(ctx context.Context, correlationID string) ([]audit.ProviderAuditLog, error) {
	rows, err := r.db.QueryContext(ctx, selectByCorrelationID, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []audit.ProviderAuditLog
	for rows.Next() {
		var entry audit.ProviderAuditLog
		var requestHeaders, responseHeaders, requestBody, responseBody []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.CorrelationID,
			&entry.Provider,
			&entry.Operation,
			&entry.RequestMethod,
			&entry.RequestURL,
			&requestHeaders,
			&requestBody,
			&entry.ResponseStatus,
			&responseHeaders,
			&responseBody,
			&entry.DurationMs,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}

		if len(requestHeaders) > 0 {
			if err := json.Unmarshal(requestHeaders, &entry.RequestHeaders); err != nil {
				return nil, fmt.Errorf("unmarshal request headers: %w", err)
			}
		}
		if len(responseHeaders) > 0 {
			if err := json.Unmarshal(responseHeaders, &entry.ResponseHeaders); err != nil {
				return nil, fmt.Errorf("unmarshal response headers: %w", err)
			}
		}
		if len(requestBody) > 0 {
			entry.RequestBody = json.RawMessage(requestBody)
		}
		if len(responseBody) > 0 {
			entry.ResponseBody = json.RawMessage(responseBody)
		}

		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return logs, nil
}

// jsonText marshals v for a JSONB column. lib/pq sends []byte as bytea, so JSON goes as text.
func jsonText(v map[string]string) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func rawText(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ audit.Repository = (*Repository)(nil)
