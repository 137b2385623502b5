// Package assets keeps cached images in step with their remote copies by
// content hash. There is no version number for an asset: a changed hash is
// the only signal.
package assets

import (
	"context"
	"fmt"
	"log"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/store"
)

// Outcome of reconciling one asset.
type Outcome int

const (
	Unchanged Outcome = iota
	Changed
	FetchFailed
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case FetchFailed:
		return "fetch_failed"
	default:
		return "unchanged"
	}
}

// Target names one remote asset and the cache slot it lands in.
type Target struct {
	Kind string // cache.KindLogos, cache.KindSplash
	Name string // file name within the kind, e.g. "ntv.png"
	URL  string
}

// ID is the asset name used for hash keys and events ("logos/ntv.png").
func (t Target) ID() string { return t.Kind + "/" + t.Name }

// Reconciler fetches assets and rewrites the cache only on content change.
type Reconciler struct {
	fetcher fetch.Getter
	store   *store.Store
	blobs   *cache.Blobs

	// Notify, if set, is called for each Changed asset.
	Notify func(Target)
}

func NewReconciler(f fetch.Getter, st *store.Store, blobs *cache.Blobs) *Reconciler {
	return &Reconciler{fetcher: f, store: st, blobs: blobs}
}

// ReconcileOne fetches t and compares its hash with the stored one. Bytes are
// written before the hash, so a stored hash always has its bytes behind it;
// a hash whose slot is empty counts as absent.
// err is non-nil only with FetchFailed.
func (r *Reconciler) ReconcileOne(ctx context.Context, t Target) (Outcome, error) {
	res, err := r.fetcher.Fetch(ctx, t.Kind, t.URL, nil)
	if err != nil {
		return FetchFailed, err
	}
	key := store.AssetHashKey(t.ID())
	if old, ok := r.store.Lookup(key); ok && old == res.ContentHash && r.blobs.Exists(t.Kind, t.Name) {
		return Unchanged, nil
	}
	if err := r.blobs.Write(t.Kind, t.Name, res.Body); err != nil {
		return FetchFailed, fmt.Errorf("assets %s: %w", t.ID(), err)
	}
	if err := r.store.SetString(key, res.ContentHash); err != nil {
		return FetchFailed, fmt.Errorf("assets %s: %w", t.ID(), err)
	}
	metrics.AssetChanges.WithLabelValues(t.Kind).Inc()
	return Changed, nil
}

// ReconcileMany runs ReconcileOne over targets in order. It returns how many
// changed and how many were fetched at all (changed or not). Failures are
// logged and skipped; the cached copy stays in use.
func (r *Reconciler) ReconcileMany(ctx context.Context, targets []Target) (changed, fetched int) {
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		out, err := r.ReconcileOne(ctx, t)
		switch out {
		case Changed:
			changed++
			fetched++
			log.Printf("assets: updated %s", t.ID())
			if r.Notify != nil {
				r.Notify(t)
			}
		case Unchanged:
			fetched++
		case FetchFailed:
			log.Printf("assets: %s not refreshed: %s", t.ID(), fetch.Describe(err))
		}
	}
	return changed, fetched
}

// Clear forgets every asset of one kind ("" for all). Hashes go first so no
// hash outlives its bytes.
func (r *Reconciler) Clear(kind string) error {
	if kind == "" {
		if err := r.store.RemovePrefix(store.AssetHashPrefix("")); err != nil {
			return err
		}
		for _, k := range []string{cache.KindLogos, cache.KindSplash} {
			if err := r.blobs.RemoveKind(k); err != nil {
				return err
			}
		}
		return nil
	}
	if err := r.store.RemovePrefix(store.AssetHashPrefix(kind)); err != nil {
		return err
	}
	return r.blobs.RemoveKind(kind)
}
