package http

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		config   *ClientConfig
		validate func(t *testing.T, client *http.Client)
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
			validate: func(t *testing.T, client *http.Client) {
				if client.Timeout != 30*time.Second {
					t.Errorf("expected default timeout 30s, got %v", client.Timeout)
				}
				transport, ok := client.Transport.(*http.Transport)
				if !ok {
					t.Fatalf("expected *http.Transport, got %T", client.Transport)
				}
				if transport.MaxConnsPerHost != defaultMaxConnsPerHost {
					t.Errorf("expected %d conns per host, got %d", defaultMaxConnsPerHost, transport.MaxConnsPerHost)
				}
			},
		},
		{
			name:   "custom pool size",
			config: &ClientConfig{Timeout: 10 * time.Second, MaxConnsPerHost: 8},
			validate: func(t *testing.T, client *http.Client) {
				transport := client.Transport.(*http.Transport)
				if transport.MaxConnsPerHost != 8 || transport.MaxIdleConnsPerHost != 8 {
					t.Errorf("expected pool of 8, got %d/%d", transport.MaxConnsPerHost, transport.MaxIdleConnsPerHost)
				}
				if transport == http.DefaultTransport {
					t.Error("expected a dedicated transport")
				}
			},
		},
		{
			name:   "custom transport",
			config: &ClientConfig{Timeout: 5 * time.Second, Transport: http.DefaultTransport},
			validate: func(t *testing.T, client *http.Client) {
				if client.Transport != http.DefaultTransport {
					t.Error("expected custom transport to be set")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.config)
			if client == nil {
				t.Fatal("expected client to be created, got nil")
			}
			tt.validate(t, client)
		})
	}
}

func TestNewTransport_IndependentInstances(t *testing.T) {
	a := NewTransport(0)
	b := NewTransport(0)
	if a == b {
		t.Error("expected separate transports")
	}
	if a.Proxy == nil {
		t.Error("expected proxy from environment to be configured")
	}
}
