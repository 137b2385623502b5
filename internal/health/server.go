package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/syncer"
)

// Reporter is satisfied by *syncer.Orchestrator.
type Reporter interface {
	Status() syncer.Status
}

// Server exposes the orchestrator's state over HTTP.
type Server struct {
	Addr     string
	Reporter Reporter
}

// Handler returns the mux without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.serveHealth())
	mux.Handle("/status", s.serveStatus())
	mux.Handle("/metrics", metrics.Handler())
	return logRequests(mux)
}

// Run listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = "127.0.0.1:9464"
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("health: listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("health: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// serveHealth returns 503 {"status":"starting"} until the first cycle ends,
// then 200 with the last outcome.
func (s *Server) serveHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := s.Reporter.Status()
		w.Header().Set("Content-Type", "application/json")
		if st.Cycles == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"status":     "ok",
			"outcome":    st.Outcome,
			"channels":   st.ChannelEntries,
			"last_cycle": st.LastCycleEnd.Format(time.RFC3339),
		})
		_, _ = w.Write(body)
	})
}

func (s *Server) serveStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Reporter.Status()); err != nil {
			log.Printf("health: encode status: %v", err)
		}
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}
