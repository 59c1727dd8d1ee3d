package ticket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	coreticket "3tcapital/otrs_connector/internal/core/ticket"
	"3tcapital/otrs_connector/internal/testutil"
)

func TestTicketFetchPool_PreservesOrder(t *testing.T) {
	provider := &testutil.MockProvider{
		TicketGetFunc: func(ctx context.Context, id int64, opts coreticket.GetOptions) (*coreticket.Ticket, error) {
			// Later IDs finish first.
			time.Sleep(time.Duration(50-id) * time.Millisecond)
			return &coreticket.Ticket{ID: id}, nil
		},
	}

	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	tickets, err := newTicketFetchPool(4, provider, coreticket.GetOptions{}).Fetch(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickets) != len(ids) {
		t.Fatalf("expected %d tickets, got %d", len(ids), len(tickets))
	}
	for i, tk := range tickets {
		if tk.ID != ids[i] {
			t.Errorf("position %d: expected ticket %d, got %d", i, ids[i], tk.ID)
		}
	}
}

func TestTicketFetchPool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	provider := &testutil.MockProvider{
		TicketGetFunc: func(ctx context.Context, id int64, opts coreticket.GetOptions) (*coreticket.Ticket, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return &coreticket.Ticket{ID: id}, nil
		},
	}

	ids := make([]int64, 30)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, err := newTicketFetchPool(3, provider, coreticket.GetOptions{}).Fetch(context.Background(), ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 3 {
		t.Errorf("expected at most 3 concurrent fetches, got %d", peak)
	}
}

func TestTicketFetchPool_FirstErrorWins(t *testing.T) {
	provider := &testutil.MockProvider{
		TicketGetFunc: func(ctx context.Context, id int64, opts coreticket.GetOptions) (*coreticket.Ticket, error) {
			if id == 3 {
				return nil, coreticket.ErrNotFound
			}
			return &coreticket.Ticket{ID: id}, nil
		},
	}

	_, err := newTicketFetchPool(2, provider, coreticket.GetOptions{}).Fetch(context.Background(), []int64{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, coreticket.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTicketFetchPool_NilTicket(t *testing.T) {
	provider := &testutil.MockProvider{
		TicketGetFunc: func(ctx context.Context, id int64, opts coreticket.GetOptions) (*coreticket.Ticket, error) {
			return nil, nil
		},
	}

	_, err := newTicketFetchPool(2, provider, coreticket.GetOptions{}).Fetch(context.Background(), []int64{8})
	if !errors.Is(err, coreticket.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTicketFetchPool_Empty(t *testing.T) {
	tickets, err := newTicketFetchPool(2, &testutil.MockProvider{}, coreticket.GetOptions{}).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tickets == nil || len(tickets) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", tickets)
	}
}

func TestTicketFetchPool_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &testutil.MockProvider{
		TicketGetFunc: func(ctx context.Context, id int64, opts coreticket.GetOptions) (*coreticket.Ticket, error) {
			return nil, ctx.Err()
		},
	}

	_, err := newTicketFetchPool(2, provider, coreticket.GetOptions{}).Fetch(ctx, []int64{1, 2, 3})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
