package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/snapetech/stbsync/internal/metrics"
)

const (
	// DefaultTimeout bounds every request so a hung fetch cannot outlive its cycle.
	DefaultTimeout         = 10 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4
)

// Options configures New.
type Options struct {
	Timeout   time.Duration // 0 = DefaultTimeout
	ProxyURL  string        // overrides HTTP_PROXY/HTTPS_PROXY when set
	NoProxy   string
	HostRate  float64 // requests per second per host; 0 = unlimited
	HostBurst int
}

var defaultClient = New(Options{})

// Default returns the shared client with environment proxy settings and no rate limit.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a copy of Default's transport.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: defaultClient.Transport,
	}
}

// New builds a client: proxy selection, per-host rate limit, Prometheus
// instrumentation, hard timeout.
func New(o Options) *http.Client {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	base := &http.Transport{
		Proxy:               proxyFunc(o.ProxyURL, o.NoProxy),
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: o.Timeout,
		// Content-Encoding is handled by the fetch package (br, gzip).
		DisableCompression: true,
	}
	var rt http.RoundTripper = base
	if o.HostRate > 0 {
		rt = &limitedTransport{next: rt, limiter: NewHostLimiter(o.HostRate, o.HostBurst)}
	}
	return &http.Client{
		Timeout:   o.Timeout,
		Transport: metrics.InstrumentRoundTripper(rt),
	}
}

func proxyFunc(proxyURL, noProxy string) func(*http.Request) (*url.URL, error) {
	cfg := httpproxy.FromEnvironment()
	if proxyURL != "" {
		cfg.HTTPProxy = proxyURL
		cfg.HTTPSProxy = proxyURL
	}
	if noProxy != "" {
		cfg.NoProxy = noProxy
	}
	pf := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return pf(r.URL)
	}
}
