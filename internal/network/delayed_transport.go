package network

import (
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// DelayConfig specifies latency simulation parameters
type DelayConfig struct {
	Enabled  bool
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DelayedRoundTripper wraps http.RoundTripper with configurable delays.
// The delay is abandoned as soon as the request context is done.
type DelayedRoundTripper struct {
	base   http.RoundTripper
	config DelayConfig

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewDelayedRoundTripper creates a new DelayedRoundTripper.
// If base is nil, http.DefaultTransport is used.
func NewDelayedRoundTripper(base http.RoundTripper, config DelayConfig) *DelayedRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DelayedRoundTripper{
		base:   base,
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RoundTrip implements http.RoundTripper
func (d *DelayedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if d.config.Enabled {
		timer := time.NewTimer(d.delay())
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
	return d.base.RoundTrip(req)
}

// delay returns a random delay within the configured range
func (d *DelayedRoundTripper) delay() time.Duration {
	lo, hi := d.config.MinDelay, d.config.MaxDelay
	if hi <= lo {
		return lo
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo + time.Duration(d.rng.Int63n(int64(hi-lo)))
}
