package logos

import (
	"context"
	"log"
	"sync"

	"github.com/snapetech/stbsync/internal/assets"
	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/safeurl"
	"github.com/snapetech/stbsync/internal/store"
)

// Manager owns the mapping cache (store.KeyLogoMapping) and the current Resolver.
type Manager struct {
	fetcher    fetch.Getter
	store      *store.Store
	mappingURL string
	logoBase   string

	mu       sync.RWMutex
	resolver *Resolver
}

// NewManager starts from the cached mapping if one parses, else Default().
func NewManager(f fetch.Getter, st *store.Store, mappingURL, logoBaseURL string) *Manager {
	m := &Manager{fetcher: f, store: st, mappingURL: mappingURL, logoBase: logoBaseURL}
	if cached, ok := m.cached(); ok {
		m.resolver = NewResolver(cached)
	} else {
		m.resolver = NewResolver(Default())
	}
	return m
}

// Refresh replaces the mapping wholesale from the network. On failure the
// current (cached or default) mapping stays. Returns true when the remote
// document was applied.
func (m *Manager) Refresh(ctx context.Context) bool {
	res, err := m.fetcher.Fetch(ctx, "logo_mapping", m.mappingURL, nil)
	if err != nil {
		log.Printf("logos: mapping fetch failed, keeping v%d: %s", m.Resolver().Version(), fetch.Describe(err))
		return false
	}
	mp, err := ParseMapping(res.Body)
	if err != nil {
		log.Printf("logos: mapping unusable, keeping v%d: %v", m.Resolver().Version(), err)
		return false
	}
	if err := m.store.SetString(store.KeyLogoMapping, string(res.Body)); err != nil {
		log.Printf("logos: persist mapping: %v", err)
	}
	m.mu.Lock()
	m.resolver = NewResolver(mp)
	m.mu.Unlock()
	return true
}

func (m *Manager) cached() (Mapping, bool) {
	raw, ok := m.store.Lookup(store.KeyLogoMapping)
	if !ok || raw == "" {
		return Mapping{}, false
	}
	mp, err := ParseMapping([]byte(raw))
	if err != nil {
		log.Printf("logos: cached mapping unreadable: %v", err)
		return Mapping{}, false
	}
	return mp, true
}

// Resolver returns the current resolver.
func (m *Manager) Resolver() *Resolver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolver
}

// Resolve is shorthand for m.Resolver().Resolve.
func (m *Manager) Resolve(channelName string) (string, Match) {
	return m.Resolver().Resolve(channelName)
}

// Targets lists every known logo file as an asset to reconcile.
func (m *Manager) Targets() []assets.Target {
	files := m.Resolver().Files()
	out := make([]assets.Target, 0, len(files))
	for _, f := range files {
		out = append(out, assets.Target{
			Kind: cache.KindLogos,
			Name: f,
			URL:  safeurl.Join(m.logoBase, f),
		})
	}
	return out
}
