package ticket

import (
	"context"
	"time"
)

// Provider defines the ticket operations offered by a ticketing backend.
type Provider interface {
	// TicketGet returns a single ticket. Returns ErrNotFound if it does not exist.
	TicketGet(ctx context.Context, id int64, opts GetOptions) (*Ticket, error)
	// TicketSearch returns the IDs of tickets matching the query.
	TicketSearch(ctx context.Context, query SearchQuery) ([]int64, error)
	// TicketCreate opens a ticket with its first article.
	TicketCreate(ctx context.Context, t Ticket, a Article) (*CreateResult, error)
	// TicketUpdate changes ticket fields and optionally adds an article.
	TicketUpdate(ctx context.Context, id int64, t Ticket, a *Article) (*UpdateResult, error)
}

// SessionStatus describes the connector's cached session without exposing the session ID.
type SessionStatus struct {
	Active        bool          `json:"active"`
	RemainingLife time.Duration `json:"-"`
	RemainingSecs int64         `json:"remainingSeconds"`
	TTLSecs       int64         `json:"ttlSeconds"`
}

// SessionController exposes the session lifecycle of a backend.
type SessionController interface {
	Status() SessionStatus
	Invalidate()
}
