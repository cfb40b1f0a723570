// Package curlring implements the per-pool bounded pool of reusable
// HTTP client handles described in spec §4.2: every pool request
// acquires a handle (blocking when the ring is exhausted) and returns
// it after use, bounding concurrent connections to a given upstream
// while avoiding a fresh TLS handshake per share.
package curlring

import (
	"context"
	"net/http"
	"time"
)

// DefaultCapacity matches the original's small-by-default ring size.
const DefaultCapacity = 2

// Ring is a bounded pool of *http.Client, all sharing the same
// underlying transport so keep-alives are reused across acquisitions.
type Ring struct {
	sem     chan *http.Client
	timeout time.Duration
}

// New creates a Ring with the given capacity (defaulted if <= 0) and
// per-request timeout.
func New(capacity int, timeout time.Duration) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: capacity,
		MaxConnsPerHost:     capacity,
	}

	r := &Ring{
		sem:     make(chan *http.Client, capacity),
		timeout: timeout,
	}
	for i := 0; i < capacity; i++ {
		r.sem <- &http.Client{Transport: transport, Timeout: timeout}
	}
	return r
}

// Acquire blocks until a client handle is available or ctx is done.
func (r *Ring) Acquire(ctx context.Context) (*http.Client, error) {
	select {
	case c := <-r.sem:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a handle previously obtained from Acquire.
func (r *Ring) Release(c *http.Client) {
	select {
	case r.sem <- c:
	default:
		// Ring was resized or the handle already returned; drop it
		// rather than block or panic.
	}
}

// Capacity reports the ring's configured size.
func (r *Ring) Capacity() int {
	return cap(r.sem)
}
