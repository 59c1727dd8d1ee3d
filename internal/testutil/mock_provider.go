package testutil

import (
	"context"

	"3tcapital/otrs_connector/internal/core/ticket"
)

// MockProvider is a mock implementation of ticket.Provider for testing.
type MockProvider struct {
	TicketGetFunc    func(ctx context.Context, id int64, opts ticket.GetOptions) (*ticket.Ticket, error)
	TicketSearchFunc func(ctx context.Context, query ticket.SearchQuery) ([]int64, error)
	TicketCreateFunc func(ctx context.Context, t ticket.Ticket, a ticket.Article) (*ticket.CreateResult, error)
	TicketUpdateFunc func(ctx context.Context, id int64, t ticket.Ticket, a *ticket.Article) (*ticket.UpdateResult, error)
}

// TicketGet calls the mock function if set, otherwise returns ticket.ErrNotFound.
func (m *MockProvider) TicketGet(ctx context.Context, id int64, opts ticket.GetOptions) (*ticket.Ticket, error) {
	if m.TicketGetFunc != nil {
		return m.TicketGetFunc(ctx, id, opts)
	}
	return nil, ticket.ErrNotFound
}

// TicketSearch calls the mock function if set, otherwise returns an empty slice.
func (m *MockProvider) TicketSearch(ctx context.Context, query ticket.SearchQuery) ([]int64, error) {
	if m.TicketSearchFunc != nil {
		return m.TicketSearchFunc(ctx, query)
	}
	return []int64{}, nil
}

// TicketCreate calls the mock function if set, otherwise returns nil result and error.
func (m *MockProvider) TicketCreate(ctx context.Context, t ticket.Ticket, a ticket.Article) (*ticket.CreateResult, error) {
	if m.TicketCreateFunc != nil {
		return m.TicketCreateFunc(ctx, t, a)
	}
	return nil, nil
}

// TicketUpdate calls the mock function if set, otherwise returns nil result and error.
func (m *MockProvider) TicketUpdate(ctx context.Context, id int64, t ticket.Ticket, a *ticket.Article) (*ticket.UpdateResult, error) {
	if m.TicketUpdateFunc != nil {
		return m.TicketUpdateFunc(ctx, id, t, a)
	}
	return nil, nil
}

// MockSessionController is a mock implementation of ticket.SessionController.
type MockSessionController struct {
	StatusValue      ticket.SessionStatus
	InvalidateCalled int
}

// Status returns StatusValue.
func (m *MockSessionController) Status() ticket.SessionStatus {
	return m.StatusValue
}

// Invalidate records the call.
func (m *MockSessionController) Invalidate() {
	m.InvalidateCalled++
}

var (
	_ ticket.Provider          = (*MockProvider)(nil)
	_ ticket.SessionController = (*MockSessionController)(nil)
)
