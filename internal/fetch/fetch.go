// Package fetch downloads remote documents for the sync loop.
//
// Design goals:
//   - Never served from an intermediary cache: every request carries no-cache directives
//   - Hard per-request timeout; cancellation through the caller's context
//   - No retry: the next sync cycle is the retry
//   - Failures are typed so callers can log transport trouble apart from HTTP status
package fetch

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/snapetech/stbsync/internal/httpclient"
	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/safeurl"
)

// DefaultMaxBody caps a single document. Playlists and logos are far smaller.
const DefaultMaxBody = 32 << 20

const userAgent = "stb-sync/1.0"

// ErrTooLarge is wrapped in a TransientError when a body exceeds the cap.
var ErrTooLarge = errors.New("fetch: body exceeds size limit")

// Result is a successful (200) response body.
type Result struct {
	URL         string
	Body        []byte
	ContentType string
	// ContentHash is sha256(Body) hex; used for change detection only.
	ContentHash string
}

// Getter is what the synchronizers need from a Fetcher.
type Getter interface {
	Fetch(ctx context.Context, target, url string, headers http.Header) (*Result, error)
}

// Fetcher issues uncached GETs with a hard timeout.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
}

// New returns a Fetcher. client nil = httpclient.Default(); timeout <= 0 = httpclient.DefaultTimeout.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = httpclient.Default()
	}
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout, maxBody: DefaultMaxBody}
}

// Fetch GETs url. target labels the request in metrics and logs ("config",
// "channels", "logo", ...). Extra headers are added after the no-cache set.
//
// Errors are *TransientError (unusable URL, transport, timeout, body read) or
// *HTTPError (non-200 status).
func (f *Fetcher) Fetch(ctx context.Context, target, url string, headers http.Header) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.Fetches.WithLabelValues(target, "transient").Inc()
		return nil, &TransientError{URL: safeurl.Redact(url), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")
	req.Header.Set("Accept-Encoding", "br, gzip")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.Fetches.WithLabelValues(target, "transient").Inc()
		return nil, &TransientError{URL: safeurl.Redact(url), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.Fetches.WithLabelValues(target, "http_error").Inc()
		return nil, &HTTPError{URL: safeurl.Redact(url), StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		metrics.Fetches.WithLabelValues(target, "transient").Inc()
		return nil, &TransientError{URL: safeurl.Redact(url), Err: err}
	}
	metrics.Fetches.WithLabelValues(target, "ok").Inc()
	return &Result{
		URL:         url,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		ContentHash: ContentHash(body),
	}, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "", "identity":
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", resp.Header.Get("Content-Encoding"))
	}
	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, ErrTooLarge
	}
	return body, nil
}

// ContentHash returns sha256(b) hex.
func ContentHash(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
