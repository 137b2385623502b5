package channels

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/remoteconfig"
	"github.com/snapetech/stbsync/internal/store"
)

const playlistV2 = "#EXTM3U\n#EXTINF:-1,Old One\nhttp://x/old\n"
const playlistV3 = "#EXTM3U\n#EXTINF:-1,Channel One\nhttp://x/1\n#EXTINF:-1,Channel Two\nhttp://x/2\n"

type playlistServer struct {
	srv       *httptest.Server
	body      atomic.Value
	status    atomic.Int32
	listHits  atomic.Int32
	secHits   atomic.Int32
	secStatus atomic.Int32
}

func newPlaylistServer(t *testing.T, body string) *playlistServer {
	t.Helper()
	ps := &playlistServer{}
	ps.body.Store(body)
	ps.status.Store(http.StatusOK)
	ps.secStatus.Store(http.StatusOK)
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/channels.m3u8":
			ps.listHits.Add(1)
			if code := int(ps.status.Load()); code != http.StatusOK {
				w.WriteHeader(code)
				return
			}
			w.Write([]byte(ps.body.Load().(string)))
		case "/files/security_config.xml":
			ps.secHits.Add(1)
			if code := int(ps.secStatus.Load()); code != http.StatusOK {
				w.WriteHeader(code)
				return
			}
			w.Write([]byte("<network-security-config/>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *playlistServer) remote(version int64) remoteconfig.ChannelsConfig {
	return remoteconfig.ChannelsConfig{
		Version:           version,
		URL:               ps.srv.URL + "/files/channels.m3u8",
		SecurityConfigURL: ps.srv.URL + "/files/security_config.xml",
	}
}

func newTestSync() (*Synchronizer, *store.Store, *cache.Blobs) {
	st := store.New(store.NewMemory())
	blobs := cache.NewBlobs(afero.NewMemMapFs(), "/cache")
	return NewSynchronizer(fetch.New(nil, time.Second), st, blobs), st, blobs
}

func TestRefresh_newerVersionFetches(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	s, st, blobs := newTestSync()
	blobs.Write(cache.KindChannels, PlaylistName, []byte(playlistV2))
	st.SetInt(store.KeyChannelsVersion, 2)

	res := s.Refresh(context.Background(), ps.remote(3))
	if res.Source != SourceNetwork || !res.Changed || res.Err != nil {
		t.Fatalf("Refresh = %+v", res)
	}
	if len(res.Entries) != 2 || res.Entries[0].Name != "Channel One" || res.Entries[1].URL != "http://x/2" {
		t.Errorf("Entries = %+v", res.Entries)
	}
	if got := st.GetInt(store.KeyChannelsVersion, 0); got != 3 {
		t.Errorf("stored version = %d, want 3", got)
	}
	data, _ := blobs.Read(cache.KindChannels, PlaylistName)
	if string(data) != playlistV3 {
		t.Errorf("cached playlist = %q", data)
	}
	if !blobs.Exists(cache.KindChannels, SecurityConfigName) {
		t.Error("security config not cached")
	}
}

func TestRefresh_neverFetchesWhenCurrent(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	s, st, blobs := newTestSync()
	blobs.Write(cache.KindChannels, PlaylistName, []byte(playlistV2))
	st.SetInt(store.KeyChannelsVersion, 3)

	for _, v := range []int64{3, 2, 0} {
		res := s.Refresh(context.Background(), ps.remote(v))
		if res.Source != SourceCache || res.Changed {
			t.Errorf("Refresh(%d) = %+v, want cache", v, res)
		}
		if len(res.Entries) != 1 || res.Entries[0].Name != "Old One" {
			t.Errorf("Refresh(%d) entries = %+v", v, res.Entries)
		}
	}
	if n := ps.listHits.Load(); n != 0 {
		t.Errorf("network fetches = %d, want 0", n)
	}
	if got := st.GetInt(store.KeyChannelsVersion, 0); got != 3 {
		t.Errorf("stored version = %d, a lower remote must not decrement it", got)
	}
}

func TestRefresh_noCacheAlwaysFetches(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	s, st, _ := newTestSync()
	st.SetInt(store.KeyChannelsVersion, 5)

	res := s.Refresh(context.Background(), ps.remote(1))
	if ps.listHits.Load() != 1 {
		t.Fatalf("listHits = %d, want 1", ps.listHits.Load())
	}
	if res.Source != SourceNetwork || len(res.Entries) != 2 {
		t.Errorf("Refresh = %+v", res)
	}
}

func TestRefresh_fetchFailureFallsBackToStaleCache(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	ps.status.Store(http.StatusInternalServerError)
	s, st, blobs := newTestSync()
	blobs.Write(cache.KindChannels, PlaylistName, []byte(playlistV2))
	st.SetInt(store.KeyChannelsVersion, 2)

	res := s.Refresh(context.Background(), ps.remote(3))
	if res.Source != SourceCache || res.Changed {
		t.Fatalf("Refresh = %+v, want stale cache", res)
	}
	if code, ok := fetch.StatusCode(res.Err); !ok || code != 500 {
		t.Errorf("Err = %v, want status 500", res.Err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Name != "Old One" {
		t.Errorf("Entries = %+v", res.Entries)
	}
	if got := st.GetInt(store.KeyChannelsVersion, 0); got != 2 {
		t.Errorf("version advanced on failure: %d", got)
	}
}

func TestRefresh_fetchFailureNoCache(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	ps.status.Store(http.StatusNotFound)
	s, _, _ := newTestSync()

	res := s.Refresh(context.Background(), ps.remote(1))
	if res.Source != SourceNone || len(res.Entries) != 0 {
		t.Fatalf("Refresh = %+v", res)
	}
	if !errors.Is(res.Err, ErrNoChannels) {
		t.Errorf("Err = %v, want ErrNoChannels", res.Err)
	}
	if _, ok := fetch.StatusCode(res.Err); !ok {
		t.Errorf("Err should carry the fetch status: %v", res.Err)
	}
}

func TestRefresh_emptyPlaylistRejected(t *testing.T) {
	ps := newPlaylistServer(t, "<html>oops</html>")
	s, st, blobs := newTestSync()
	blobs.Write(cache.KindChannels, PlaylistName, []byte(playlistV2))
	st.SetInt(store.KeyChannelsVersion, 2)

	res := s.Refresh(context.Background(), ps.remote(3))
	if !errors.Is(res.Err, ErrEmptyPlaylist) || res.Source != SourceCache {
		t.Fatalf("Refresh = %+v", res)
	}
	if got := st.GetInt(store.KeyChannelsVersion, 0); got != 2 {
		t.Errorf("version = %d, want 2", got)
	}
}

func TestRefresh_securityConfigFailureIgnored(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	ps.secStatus.Store(http.StatusNotFound)
	s, _, blobs := newTestSync()

	res := s.Refresh(context.Background(), ps.remote(1))
	if res.Err != nil || !res.Changed {
		t.Fatalf("Refresh = %+v", res)
	}
	if blobs.Exists(cache.KindChannels, SecurityConfigName) {
		t.Error("security config should not be cached after 404")
	}
}

func TestClear(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	s, st, blobs := newTestSync()
	s.Refresh(context.Background(), ps.remote(4))

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if st.GetInt(store.KeyChannelsVersion, 0) != 0 || blobs.Exists(cache.KindChannels, PlaylistName) {
		t.Error("Clear left state behind")
	}
	if res := s.Cached(); !errors.Is(res.Err, ErrNoChannels) {
		t.Errorf("Cached after Clear = %+v", res)
	}
}

func TestRefresh_cacheWriteFailureStillDelivers(t *testing.T) {
	ps := newPlaylistServer(t, playlistV3)
	st := store.New(store.NewMemory())
	blobs := cache.NewBlobs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/cache")
	s := NewSynchronizer(fetch.New(nil, time.Second), st, blobs)

	res := s.Refresh(context.Background(), ps.remote(3))
	if res.Source != SourceNetwork || !res.Changed || res.Err == nil {
		t.Fatalf("Refresh = %+v", res)
	}
	if len(res.Entries) != 2 {
		t.Errorf("Entries = %+v", res.Entries)
	}
	if got := st.GetInt(store.KeyChannelsVersion, 0); got != 0 {
		t.Errorf("stored version = %d, want 0 when the playlist was not cached", got)
	}
}
