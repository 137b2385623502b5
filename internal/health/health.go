// Package health checks reachability of the sync host and serves the local
// status endpoints (/healthz, /status, /metrics).
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/stbsync/internal/httpclient"
)

// CheckHost fetches url (GET; some static hosts reject HEAD). Returns nil on 200.
func CheckHost(ctx context.Context, client *http.Client, url string) error {
	if url == "" {
		return fmt.Errorf("no URL configured")
	}
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("host unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckEndpoints hits healthz, status and metrics of a running status server
// at baseURL and returns the first error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(5 * time.Second)
	for _, path := range []string{"/healthz", "/status", "/metrics"} {
		url := baseURL + path
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
