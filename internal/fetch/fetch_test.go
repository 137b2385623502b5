package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestFetch_noCacheHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(nil, time.Second)
	res, err := f.Fetch(context.Background(), "config", srv.URL, http.Header{"X-Device-Id": {"dev1"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", res.Body)
	}
	if res.ContentHash != ContentHash(res.Body) {
		t.Errorf("ContentHash mismatch")
	}
	for k, want := range map[string]string{
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
		"Expires":       "0",
		"X-Device-Id":   "dev1",
	} {
		if got.Get(k) != want {
			t.Errorf("header %s = %q, want %q", k, got.Get(k), want)
		}
	}
}

func TestFetch_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(nil, time.Second).Fetch(context.Background(), "config", srv.URL, nil)
	code, ok := StatusCode(err)
	if !ok || code != http.StatusNotFound {
		t.Fatalf("StatusCode(%v) = %d,%v want 404,true", err, code, ok)
	}
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
	if Describe(err) != "status=404" {
		t.Errorf("Describe = %q", Describe(err))
	}
}

func TestFetch_timeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(nil, 50*time.Millisecond).Fetch(context.Background(), "config", srv.URL, nil)
	if !IsTransient(err) {
		t.Fatalf("err = %v, want TransientError", err)
	}
	var te *TransientError
	errors.As(err, &te)
	if !te.Timeout() {
		t.Errorf("Timeout() = false for %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("fetch was not bounded by its timeout")
	}
}

func TestFetch_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(nil, time.Second).Fetch(context.Background(), "config", url, nil)
	if !IsTransient(err) {
		t.Fatalf("err = %v, want TransientError", err)
	}
	if _, ok := StatusCode(err); ok {
		t.Error("transport failure should carry no status")
	}
}

func TestFetch_unusableURLIsTransient(t *testing.T) {
	_, err := New(nil, time.Second).Fetch(context.Background(), "config", "http://x/\x7f", nil)
	if !IsTransient(err) {
		t.Fatalf("err = %v, want TransientError", err)
	}
	if !strings.HasPrefix(Describe(err), "transient: ") {
		t.Errorf("Describe = %q", Describe(err))
	}
}

func TestFetch_cancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, time.Second).Fetch(ctx, "config", srv.URL, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFetch_decodesContentEncoding(t *testing.T) {
	payload := strings.Repeat("#EXTINF:-1,Channel\nhttp://x/1\n", 50)

	var br, gz bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(payload))
	bw.Close()
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(payload))
	gw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"br", br.Bytes()},
		{"gzip", gz.Bytes()},
		{"", []byte(payload)},
	}
	for _, tt := range tests {
		t.Run("enc="+tt.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Write(tt.body)
			}))
			defer srv.Close()
			res, err := New(nil, time.Second).Fetch(context.Background(), "channels", srv.URL, nil)
			if err != nil {
				t.Fatal(err)
			}
			if string(res.Body) != payload {
				t.Errorf("decoded body mismatch (len %d vs %d)", len(res.Body), len(payload))
			}
		})
	}
}

func TestFetch_tooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer srv.Close()
	f := New(nil, time.Second)
	f.maxBody = 10
	_, err := f.Fetch(context.Background(), "logo", srv.URL, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash([]byte("a")) == ContentHash([]byte("b")) {
		t.Error("different input should hash differently")
	}
	if ContentHash(nil) != ContentHash([]byte{}) {
		t.Error("nil and empty should hash the same")
	}
}
