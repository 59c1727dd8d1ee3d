package ticket

import (
	"context"
	"fmt"
	"log/slog"

	coreticket "3tcapital/otrs_connector/internal/core/ticket"
)

// DefaultClosedStateID is the OTRS "closed successful" state in a stock installation.
const DefaultClosedStateID int64 = 2

// MaxExpandedResults caps how many tickets SearchExpanded retrieves in full.
const MaxExpandedResults = 100

// Service orchestrates ticket use cases on top of a ticket provider.
type Service struct {
	provider      coreticket.Provider
	closedStateID int64
	fetchWorkers  int
	log           *slog.Logger
}

// NewService creates a new ticket service. A non-positive closedStateID uses DefaultClosedStateID.
func NewService(provider coreticket.Provider, closedStateID int64, log *slog.Logger) *Service {
	if closedStateID <= 0 {
		closedStateID = DefaultClosedStateID
	}
	return &Service{
		provider:      provider,
		closedStateID: closedStateID,
		fetchWorkers:  DefaultFetchWorkers,
		log:           log,
	}
}

// Get retrieves a ticket with all articles, attachments and dynamic fields.
func (s *Service) Get(ctx context.Context, id int64) (*coreticket.Ticket, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: ticket id must be positive", coreticket.ErrValidation)
	}

	return s.provider.TicketGet(ctx, id, coreticket.GetOptions{
		AllArticles:   true,
		Attachments:   true,
		DynamicFields: true,
	})
}

// Search returns the IDs of tickets matching query. At least one filter is required.
func (s *Service) Search(ctx context.Context, query coreticket.SearchQuery) ([]int64, error) {
	if query.IsEmpty() {
		return nil, fmt.Errorf("%w: at least one search filter is required", coreticket.ErrValidation)
	}
	if query.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", coreticket.ErrValidation)
	}

	ids, err := s.provider.TicketSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	return ids, nil
}

// SearchExpanded runs Search and then retrieves every match with its articles and
// dynamic fields. Attachments are left out to keep responses small. A zero limit
// means MaxExpandedResults; larger limits are rejected.
func (s *Service) SearchExpanded(ctx context.Context, query coreticket.SearchQuery) ([]coreticket.Ticket, error) {
	if query.Limit > MaxExpandedResults {
		return nil, fmt.Errorf("%w: limit cannot exceed %d when expanding results", coreticket.ErrValidation, MaxExpandedResults)
	}
	if query.Limit == 0 {
		query.Limit = MaxExpandedResults
	}

	ids, err := s.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}

	pool := newTicketFetchPool(s.fetchWorkers, s.provider, coreticket.GetOptions{
		AllArticles:   true,
		DynamicFields: true,
	})
	tickets, err := pool.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch tickets: %w", err)
	}

	s.log.Debug("Expanded ticket search", "matches", len(ids))
	return tickets, nil
}

// Create opens a ticket with its first article.
func (s *Service) Create(ctx context.Context, t coreticket.Ticket, a coreticket.Article) (*coreticket.CreateResult, error) {
	if err := t.ValidateForCreate(); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	result, err := s.provider.TicketCreate(ctx, t, a)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.log.Info("Ticket created", "ticket_id", result.TicketID, "ticket_number", result.TicketNumber)
	return result, nil
}

// Update changes a ticket and optionally adds an article.
func (s *Service) Update(ctx context.Context, id int64, t coreticket.Ticket, a *coreticket.Article) (*coreticket.UpdateResult, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: ticket id must be positive", coreticket.ErrValidation)
	}
	if a != nil {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	result, err := s.provider.TicketUpdate(ctx, id, t, a)
	if err != nil {
		return nil, fmt.Errorf("update ticket %d: %w", id, err)
	}
	return result, nil
}

// Close moves a ticket to the closed state and drops its Service and SLA, which OTRS
// otherwise keeps pointing at the closed ticket. note, if set, is added as an article.
func (s *Service) Close(ctx context.Context, id int64, note *coreticket.Article) (*coreticket.UpdateResult, error) {
	var update coreticket.Ticket
	update.StateID = coreticket.Int64(s.closedStateID)
	for _, field := range []string{"ServiceID", "SLAID"} {
		if err := update.ClearField(field); err != nil {
			return nil, err
		}
	}

	result, err := s.Update(ctx, id, update, note)
	if err != nil {
		return nil, err
	}

	s.log.Info("Ticket closed", "ticket_id", id, "state_id", s.closedStateID)
	return result, nil
}
