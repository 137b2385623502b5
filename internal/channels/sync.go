// Package channels keeps the cached channel playlist in step with the
// version announced in the remote config.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/remoteconfig"
	"github.com/snapetech/stbsync/internal/store"
)

// Cache slot names under cache.KindChannels.
const (
	PlaylistName       = "channels.m3u8"
	SecurityConfigName = "security_config.xml"
)

var (
	// ErrNoChannels means no playlist could be fetched and none is cached.
	ErrNoChannels = errors.New("channels: no channel list available")
	// ErrEmptyPlaylist marks a downloaded document with no playable entries.
	ErrEmptyPlaylist = errors.New("channels: playlist has no entries")
)

// Source says where a Result's entries came from.
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

// Result of a refresh.
type Result struct {
	Entries []Entry
	Version int64 // stored version after the refresh
	Source  Source
	// Changed is true when a new playlist was downloaded and stored.
	Changed bool
	// Err is the fetch failure behind a cache fallback, or ErrNoChannels.
	Err error
}

// Synchronizer owns store.KeyChannelsVersion and the playlist cache slot.
type Synchronizer struct {
	fetcher fetch.Getter
	store   *store.Store
	blobs   *cache.Blobs
}

func NewSynchronizer(f fetch.Getter, st *store.Store, blobs *cache.Blobs) *Synchronizer {
	return &Synchronizer{fetcher: f, store: st, blobs: blobs}
}

// StoredVersion is the version of the cached playlist (0 if never stored).
func (s *Synchronizer) StoredVersion() int64 {
	return s.store.GetInt(store.KeyChannelsVersion, 0)
}

// Refresh downloads the playlist when remote.Version is above the stored
// version or nothing is cached; otherwise it serves the cache without network
// access. A failed download falls back to whatever is cached.
func (s *Synchronizer) Refresh(ctx context.Context, remote remoteconfig.ChannelsConfig) Result {
	stored := s.StoredVersion()
	remoteVersion := remote.Version
	hasCache := s.blobs.Exists(cache.KindChannels, PlaylistName)

	if remoteVersion <= stored && hasCache {
		if remoteVersion < stored {
			log.Printf("channels: remote version %d is below stored %d; keeping cached list", remoteVersion, stored)
		}
		return s.fromCache(nil)
	}

	res, err := s.fetcher.Fetch(ctx, "channels", remote.URL, nil)
	if err != nil {
		log.Printf("channels: download v%d failed: %s", remoteVersion, fetch.Describe(err))
		return s.fromCache(err)
	}
	entries, err := ParseM3UBytes(res.Body)
	if err == nil && len(entries) == 0 {
		err = ErrEmptyPlaylist
	}
	if err != nil {
		log.Printf("channels: downloaded v%d unusable: %v", remoteVersion, err)
		return s.fromCache(err)
	}

	// Bytes first, version second: a crash in between re-downloads next time.
	if err := s.blobs.Write(cache.KindChannels, PlaylistName, res.Body); err != nil {
		log.Printf("channels: cache write failed: %v", err)
		// The list is new to the caller even though it could not be cached.
		return Result{Entries: entries, Version: stored, Source: SourceNetwork, Changed: true, Err: err}
	}
	if err := s.store.SetInt(store.KeyChannelsVersion, remoteVersion); err != nil {
		log.Printf("channels: version write failed: %v", err)
	}
	log.Printf("channels: updated to v%d entries=%d", remoteVersion, len(entries))
	s.refreshSecurityConfig(ctx, remote.SecurityConfigURL)
	setGauges(remoteVersion, len(entries))
	return Result{Entries: entries, Version: remoteVersion, Source: SourceNetwork, Changed: true}
}

// Cached returns the cached playlist without network access.
func (s *Synchronizer) Cached() Result {
	return s.fromCache(nil)
}

func (s *Synchronizer) fromCache(cause error) Result {
	stored := s.StoredVersion()
	data, err := s.blobs.Read(cache.KindChannels, PlaylistName)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.Printf("channels: read cache: %v", err)
		}
		if cause != nil {
			return Result{Version: stored, Err: fmt.Errorf("%w: %w", ErrNoChannels, cause)}
		}
		return Result{Version: stored, Err: ErrNoChannels}
	}
	entries, err := ParseM3UBytes(data)
	if err != nil {
		return Result{Version: stored, Err: fmt.Errorf("%w: cached list: %w", ErrNoChannels, err)}
	}
	setGauges(stored, len(entries))
	return Result{Entries: entries, Version: stored, Source: SourceCache, Err: cause}
}

// refreshSecurityConfig caches the network security document that ships with
// each playlist version. Best effort.
func (s *Synchronizer) refreshSecurityConfig(ctx context.Context, url string) {
	if url == "" {
		return
	}
	res, err := s.fetcher.Fetch(ctx, "security_config", url, nil)
	if err != nil {
		log.Printf("channels: security config not refreshed: %s", fetch.Describe(err))
		return
	}
	if err := s.blobs.Write(cache.KindChannels, SecurityConfigName, res.Body); err != nil {
		log.Printf("channels: security config cache write: %v", err)
	}
}

// Clear drops the cached playlist and its version so the next refresh downloads.
func (s *Synchronizer) Clear() error {
	if err := s.store.Remove(store.KeyChannelsVersion); err != nil {
		return err
	}
	return s.blobs.RemoveKind(cache.KindChannels)
}

func setGauges(version int64, n int) {
	metrics.ChannelsVersion.Set(float64(version))
	metrics.ChannelEntries.Set(float64(n))
}
