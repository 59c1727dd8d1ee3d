package http

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultMaxConnsPerHost = 50

// ClientConfig holds configuration for outbound HTTP clients.
type ClientConfig struct {
	Timeout         time.Duration
	MaxConnsPerHost int // 0 uses defaultMaxConnsPerHost
	Transport       http.RoundTripper
}

// NewTransport returns a pooled transport sized for a single upstream host.
func NewTransport(maxConnsPerHost int) *http.Transport {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	transport := cleanhttp.DefaultPooledTransport()
	transport.MaxConnsPerHost = maxConnsPerHost
	transport.MaxIdleConnsPerHost = maxConnsPerHost
	return transport
}

// NewClient creates an HTTP client with a pooled transport that does not share global state.
// A nil config uses a 30s timeout.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = &ClientConfig{Timeout: 30 * time.Second}
	}

	transport := config.Transport
	if transport == nil {
		transport = NewTransport(config.MaxConnsPerHost)
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}
