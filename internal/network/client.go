package network

import (
	"net/http"
	"time"

	"github.com/andreafspeziale/splitter-contract/config"
)

// NewHTTPClient creates the outbound client used for event delivery.
// If cfg.DelayEnabled is true, every request is delayed to simulate latency.
func NewHTTPClient(cfg config.NetworkConfig, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport

	if cfg.DelayEnabled {
		transport = NewDelayedRoundTripper(transport, DelayConfig{
			Enabled:  true,
			MinDelay: time.Duration(cfg.MinDelayMs) * time.Millisecond,
			MaxDelay: time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		})
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
