// Package cachefs exposes the sync cache as a read-only FUSE tree:
//
//	/config.json          last cached remote config
//	/channels/...         playlist and security config
//	/logos/...            channel logos
//	/splash/...           splash images
package cachefs

import (
	"errors"
	"hash/fnv"
	"os"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/store"
)

const ConfigName = "config.json"

// Kinds are the top-level directories, in listing order.
var Kinds = []string{cache.KindChannels, cache.KindLogos, cache.KindSplash}

// View resolves mount paths against the cache. It has no FUSE dependency.
type View struct {
	Blobs *cache.Blobs
	Store *store.Store
}

// RootEntries lists the kind directories plus config.json when a config is cached.
func (v View) RootEntries() []string {
	out := append([]string(nil), Kinds...)
	if _, ok := v.Store.Lookup(store.KeyConfigCache); ok {
		out = append(out, ConfigName)
	}
	return out
}

// List returns the files cached for kind.
func (v View) List(kind string) ([]string, error) {
	if !IsKind(kind) {
		return nil, os.ErrNotExist
	}
	return v.Blobs.List(kind)
}

// ReadFile returns the bytes for kind/name; kind "" addresses config.json.
func (v View) ReadFile(kind, name string) ([]byte, error) {
	if kind == "" {
		if name != ConfigName {
			return nil, os.ErrNotExist
		}
		s, ok := v.Store.Lookup(store.KeyConfigCache)
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(s), nil
	}
	if !IsKind(kind) {
		return nil, os.ErrNotExist
	}
	data, err := v.Blobs.Read(kind, name)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, os.ErrNotExist
	}
	return data, err
}

func IsKind(name string) bool {
	for _, k := range Kinds {
		if k == name {
			return true
		}
	}
	return false
}

// Stable inode numbers from path-like keys so the same file keeps its inode.
func inoFromString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte("stbcache:" + s))
	return h.Sum64()
}
