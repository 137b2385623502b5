package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/store"
)

// ErrNoCache means the fetch failed and no document was ever cached.
var ErrNoCache = errors.New("remoteconfig: no cached config")

// Source says where a Result's config came from.
type Source int

const (
	SourceNone Source = iota
	SourceNetwork
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	default:
		return "none"
	}
}

// Result of a sync. Config is only meaningful when Source != SourceNone.
// Err carries the fetch or parse failure that forced a fallback, for logging.
type Result struct {
	Config Config
	Source Source
	Err    error
}

// OK reports whether a config is available.
func (r Result) OK() bool { return r.Source != SourceNone }

// Synchronizer keeps the cached raw document in step with the remote one.
type Synchronizer struct {
	fetcher fetch.Getter
	store   *store.Store
	url     string
	base    string
}

// NewSynchronizer fetches url; base roots the default URLs of missing fields.
func NewSynchronizer(f fetch.Getter, st *store.Store, url, base string) *Synchronizer {
	return &Synchronizer{fetcher: f, store: st, url: url, base: base}
}

// Sync fetches and parses the document, persisting the raw bytes on success.
// On any failure it returns the cached copy, or SourceNone with ErrNoCache.
func (s *Synchronizer) Sync(ctx context.Context) Result {
	res := s.sync(ctx)
	metrics.ConfigSource.WithLabelValues(res.Source.String()).Inc()
	return res
}

// ForceSync drops the cached document before syncing, so a failed fetch
// reports SourceNone instead of stale data.
func (s *Synchronizer) ForceSync(ctx context.Context) Result {
	if err := s.store.Remove(store.KeyConfigCache); err != nil {
		log.Printf("remoteconfig: clear cache: %v", err)
	}
	return s.Sync(ctx)
}

func (s *Synchronizer) sync(ctx context.Context) Result {
	res, err := s.fetcher.Fetch(ctx, "config", s.url, nil)
	if err == nil {
		cfg, perr := Parse(res.Body, s.base)
		if perr == nil {
			if werr := s.store.SetString(store.KeyConfigCache, string(res.Body)); werr != nil {
				log.Printf("remoteconfig: persist cache: %v", werr)
			}
			return Result{Config: cfg, Source: SourceNetwork}
		}
		err = perr
	}
	log.Printf("remoteconfig: sync failed, trying cache err=%s", fetch.Describe(err))

	cfg, ok := s.Cached()
	if !ok {
		return Result{Source: SourceNone, Err: fmt.Errorf("%w: %w", ErrNoCache, err)}
	}
	return Result{Config: cfg, Source: SourceCache, Err: err}
}

// Cached parses the cached document without touching the network.
// A cached document that no longer parses is dropped.
func (s *Synchronizer) Cached() (Config, bool) {
	raw, ok := s.store.Lookup(store.KeyConfigCache)
	if !ok || raw == "" {
		return Config{}, false
	}
	cfg, err := Parse([]byte(raw), s.base)
	if err != nil {
		log.Printf("remoteconfig: cached config unreadable, dropping: %v", err)
		if err := s.store.Remove(store.KeyConfigCache); err != nil {
			log.Printf("remoteconfig: drop cached config: %v", err)
		}
		return Config{}, false
	}
	return cfg, true
}
