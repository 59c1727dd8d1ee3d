package health

import (
	"context"
	"fmt"
	"time"

	corehealth "3tcapital/otrs_connector/internal/core/health"
	"3tcapital/otrs_connector/internal/core/ticket"
)

// pingTimeout bounds the database check so /health stays fast.
const pingTimeout = 2 * time.Second

// Metadata contains immutable metadata about the running service.
type Metadata struct {
	Service     string
	Version     string
	Environment string
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Option configures the dependencies reported by Status.
type Option func(*Service)

// WithSession reports the cached OTRS session.
func WithSession(session ticket.SessionController) Option {
	return func(s *Service) { s.session = session }
}

// WithDatabase reports the audit database.
func WithDatabase(db Pinger) Option {
	return func(s *Service) { s.db = db }
}

// Service exposes health-check use cases to adapters.
type Service struct {
	meta      Metadata
	startedAt time.Time
	session   ticket.SessionController
	db        Pinger
}

func NewService(meta Metadata, opts ...Option) *Service {
	s := &Service{
		meta:      meta,
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current availability snapshot. A missing OTRS session is not a
// failure since one is created on the next call; an unreachable database is.
func (s *Service) Status(ctx context.Context) corehealth.Status {
	uptime := time.Since(s.startedAt)
	status := corehealth.Status{
		Service:     s.meta.Service,
		Version:     s.meta.Version,
		Environment: s.meta.Environment,
		Status:      corehealth.StatusUp,
		StartedAt:   s.startedAt,
		Uptime:      uptime.String(),
		UptimeSecs:  int64(uptime.Seconds()),
	}

	if s.session == nil && s.db == nil {
		return status
	}
	status.Dependencies = make(map[string]corehealth.Check)

	if s.session != nil {
		st := s.session.Status()
		check := corehealth.Check{Status: corehealth.StatusUp, Detail: "no active session"}
		if st.Active {
			check.Detail = fmt.Sprintf("session expires in %ds", st.RemainingSecs)
		}
		status.Dependencies["otrs_session"] = check
	}

	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			status.Status = corehealth.StatusDegraded
			status.Dependencies["database"] = corehealth.Check{Status: corehealth.StatusDegraded, Detail: err.Error()}
		} else {
			status.Dependencies["database"] = corehealth.Check{Status: corehealth.StatusUp}
		}
	}
	return status
}
