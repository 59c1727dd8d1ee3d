package ticket

import (
	"context"
	"fmt"
	"sync"

	coreticket "3tcapital/otrs_connector/internal/core/ticket"
)

// DefaultFetchWorkers is the number of concurrent TicketGet calls used by SearchExpanded.
const DefaultFetchWorkers = 5

// fetchJob is one ticket to retrieve. Index keeps results in search order.
type fetchJob struct {
	ID    int64
	Index int
}

// fetchResult is the outcome of a fetchJob.
type fetchResult struct {
	Ticket *coreticket.Ticket
	Err    error
	Index  int
}

// ticketFetchPool retrieves tickets concurrently with a fixed number of workers.
// The OTRS client still applies its own concurrency and rate limits underneath.
type ticketFetchPool struct {
	workerCount int
	provider    coreticket.Provider
	opts        coreticket.GetOptions
	jobChan     chan fetchJob
	resultChan  chan fetchResult
	wg          sync.WaitGroup
}

func newTicketFetchPool(workerCount int, provider coreticket.Provider, opts coreticket.GetOptions) *ticketFetchPool {
	if workerCount <= 0 {
		workerCount = DefaultFetchWorkers
	}
	return &ticketFetchPool{
		workerCount: workerCount,
		provider:    provider,
		opts:        opts,
		jobChan:     make(chan fetchJob, workerCount*2),
		resultChan:  make(chan fetchResult, workerCount*2),
	}
}

// Fetch returns the tickets for ids in the same order. The first error cancels the
// remaining work and is returned.
func (p *ticketFetchPool) Fetch(ctx context.Context, ids []int64) ([]coreticket.Ticket, error) {
	if len(ids) == 0 {
		return []coreticket.Ticket{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.workerCount
	if workers > len(ids) {
		workers = len(ids)
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	go func() {
		defer close(p.jobChan)
		for i, id := range ids {
			select {
			case p.jobChan <- fetchJob{ID: id, Index: i}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		p.wg.Wait()
		close(p.resultChan)
	}()

	tickets := make([]coreticket.Ticket, len(ids))
	var firstErr error
	received := 0
	for result := range p.resultChan {
		if result.Err != nil {
			if firstErr == nil {
				firstErr = result.Err
				cancel()
			}
			continue
		}
		if result.Ticket == nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %d", coreticket.ErrNotFound, ids[result.Index])
				cancel()
			}
			continue
		}
		tickets[result.Index] = *result.Ticket
		received++
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if received != len(ids) {
		return nil, ctx.Err()
	}
	return tickets, nil
}

func (p *ticketFetchPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobChan {
		if ctx.Err() != nil {
			return
		}
		t, err := p.provider.TicketGet(ctx, job.ID, p.opts)

		select {
		case p.resultChan <- fetchResult{Ticket: t, Err: err, Index: job.Index}:
		case <-ctx.Done():
			return
		}
	}
}
