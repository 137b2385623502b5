package httpclient

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter is a per-host request rate limiter shared by every request
// a client makes. Static hosts such as GitHub Pages throttle bursts from a
// single client; one cycle fetching a few dozen logos would otherwise hit it.
//
//	if err := lim.Wait(ctx, req.URL.Host); err != nil { ... }
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter allows rps requests per second per host with the given burst.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    lim,
		burst:    burst,
	}
}

// Wait blocks until host may send another request or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiterFor(host).Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

type limitedTransport struct {
	next    http.RoundTripper
	limiter *HostLimiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
