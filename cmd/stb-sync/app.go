package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/snapetech/stbsync/internal/admission"
	"github.com/snapetech/stbsync/internal/assets"
	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/channels"
	"github.com/snapetech/stbsync/internal/config"
	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/httpclient"
	"github.com/snapetech/stbsync/internal/lockfile"
	"github.com/snapetech/stbsync/internal/logos"
	"github.com/snapetech/stbsync/internal/remoteconfig"
	"github.com/snapetech/stbsync/internal/safeurl"
	"github.com/snapetech/stbsync/internal/store"
	"github.com/snapetech/stbsync/internal/syncer"
	"github.com/snapetech/stbsync/internal/update"
)

// app is the wired set of components every command works from.
type app struct {
	cfg       *config.Config
	store     *store.Store
	blobs     *cache.Blobs
	client    *http.Client
	fetcher   *fetch.Fetcher
	config    *remoteconfig.Synchronizer
	channels  *channels.Synchronizer
	assets    *assets.Reconciler
	logos     *logos.Manager
	updates   *update.Checker
	admission *admission.Checker
	lock      *lockfile.Lock // nil for read-only commands
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings:\n%w", err)
	}
	return cfg, nil
}

// errSyncRunning is returned when another process holds the data directory.
var errSyncRunning = errors.New("sync already running")

// openApp wires every component. Commands that change sync state pass
// exclusive so that only one process per data directory does so at a time.
func openApp(exclusive bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var lock *lockfile.Lock
	if exclusive {
		lock, err = lockfile.Acquire(cfg.DataDir)
		if errors.Is(err, lockfile.ErrLocked) {
			return nil, fmt.Errorf("%w: %v", errSyncRunning, err)
		}
		if err != nil {
			return nil, err
		}
	}
	st, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	client := httpclient.New(httpclient.Options{
		Timeout:   cfg.FetchTimeout,
		ProxyURL:  cfg.ProxyURL,
		NoProxy:   cfg.NoProxy,
		HostRate:  cfg.HostRate,
		HostBurst: cfg.HostBurst,
	})
	f := fetch.New(client, cfg.FetchTimeout)
	blobs := cache.NewOSBlobs(cfg.CacheDir())

	a := &app{
		cfg:      cfg,
		store:    st,
		blobs:    blobs,
		client:   client,
		fetcher:  f,
		config:   remoteconfig.NewSynchronizer(f, st, cfg.ConfigURL, cfg.BaseURL),
		channels: channels.NewSynchronizer(f, st, blobs),
		assets:   assets.NewReconciler(f, st, blobs),
		logos:    logos.NewManager(f, st, cfg.LogoMappingURL, cfg.LogoBaseURL),
		updates:  update.NewChecker(cfg.AppVersion, cfg.AppVersionCode, st),
		lock:     lock,
	}
	if cfg.DevicesURL != "" {
		id := admission.DeviceID(st, cfg.DeviceID)
		a.admission = admission.NewChecker(f, st, cfg.DevicesURL, id)
	}
	log.Printf("config: base=%s store=%s:%s data=%s", safeurl.Redact(cfg.BaseURL), cfg.StoreBackend, cfg.StorePath, cfg.DataDir)
	return a, nil
}

func (a *app) orchestrator(l syncer.Listener) *syncer.Orchestrator {
	return syncer.New(syncer.Deps{
		Store:     a.store,
		Config:    a.config,
		Channels:  a.channels,
		Assets:    a.assets,
		Logos:     a.logos,
		Updates:   a.updates,
		Admission: a.admission,
		Listener:  l,
	}, syncer.Options{
		Interval:      a.cfg.PollInterval,
		AssetInterval: a.cfg.AssetCheckInterval,
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("store: close: %v", err)
	}
	if err := a.lock.Unlock(); err != nil {
		log.Printf("lockfile: release: %v", err)
	}
}
