package health

import "time"

const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
)

// Status captures the state of the service at a moment in time.
type Status struct {
	Service      string           `json:"service"`
	Version      string           `json:"version"`
	Environment  string           `json:"environment"`
	Status       string           `json:"status"`
	StartedAt    time.Time        `json:"startedAt"`
	Uptime       string           `json:"uptime"`
	UptimeSecs   int64            `json:"uptimeSeconds"`
	Dependencies map[string]Check `json:"dependencies,omitempty"`
}

// Check is the state of one dependency.
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
