package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRoundTripper_counts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	before := testutil.ToFloat64(ClientRequests.WithLabelValues("418", "get"))
	client := &http.Client{Transport: InstrumentRoundTripper(http.DefaultTransport)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	after := testutil.ToFloat64(ClientRequests.WithLabelValues("418", "get"))
	if after != before+1 {
		t.Errorf("client_requests_total{code=418} = %v, want %v", after, before+1)
	}
}

func TestHandler_exposesSyncMetrics(t *testing.T) {
	Cycles.WithLabelValues("available").Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `stbsync_cycles_total{outcome="available"}`) {
		t.Errorf("cycles metric missing from output:\n%s", body)
	}
}
