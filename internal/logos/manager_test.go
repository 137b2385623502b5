package logos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/store"
)

const remoteMapping = `{"version":5,"mappings":{"мой канал":"my.png"},"auto_generation_rules":{"remove_hd":true,"file_extension":".png"}}`

func TestManager_refreshAndFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(remoteMapping))
	}))
	defer srv.Close()

	st := store.New(store.NewMemory())
	f := fetch.New(nil, time.Second)
	m := NewManager(f, st, srv.URL+"/api/channel-mapping.json", "https://h/files/channel-logos/")

	if v := m.Resolver().Version(); v != 0 {
		t.Fatalf("initial version = %d, want default 0", v)
	}
	if !m.Refresh(context.Background()) {
		t.Fatal("Refresh failed")
	}
	if file, how := m.Resolve("Мой канал"); file != "my.png" || how != MatchExact {
		t.Errorf("Resolve = %q,%v", file, how)
	}
	if st.GetString(store.KeyLogoMapping, "") != remoteMapping {
		t.Error("mapping not cached verbatim")
	}

	fail.Store(true)
	if m.Refresh(context.Background()) {
		t.Error("Refresh should report failure")
	}
	if v := m.Resolver().Version(); v != 5 {
		t.Errorf("version after failed refresh = %d, want 5", v)
	}

	// A new manager starts from the cached copy.
	m2 := NewManager(f, st, srv.URL, "https://h/files/channel-logos")
	if v := m2.Resolver().Version(); v != 5 {
		t.Errorf("restarted version = %d, want cached 5", v)
	}
}

func TestManager_targets(t *testing.T) {
	st := store.New(store.NewMemory())
	st.SetString(store.KeyLogoMapping, remoteMapping)
	m := NewManager(fetch.New(nil, time.Second), st, "http://unused", "https://h/files/channel-logos/")
	targets := m.Targets()
	if len(targets) != 1 {
		t.Fatalf("Targets = %+v", targets)
	}
	tg := targets[0]
	if tg.Kind != cache.KindLogos || tg.Name != "my.png" || tg.URL != "https://h/files/channel-logos/my.png" {
		t.Errorf("target = %+v", tg)
	}
}

func TestManager_malformedRemoteKeepsCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":`))
	}))
	defer srv.Close()
	st := store.New(store.NewMemory())
	m := NewManager(fetch.New(nil, time.Second), st, srv.URL, "https://h")
	if m.Refresh(context.Background()) {
		t.Error("malformed mapping should not apply")
	}
	if _, ok := st.Lookup(store.KeyLogoMapping); ok {
		t.Error("malformed mapping should not be cached")
	}
	if file, _ := m.Resolve("НТВ HD"); file != "ntv.png" {
		t.Errorf("default mapping lost: %q", file)
	}
}
