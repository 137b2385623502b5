// Package syncer drives the periodic sync cycle: remote config first, then
// the service-state gate, then logos, splash images and the channel list.
//
// Cycles are single-flight. A tick or trigger that arrives while a cycle is
// running is dropped, not queued. The first cycle after Run uses the config
// cache when the network fails; later cycles call ForceSync so the decision
// always reflects the server.
package syncer

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapetech/stbsync/internal/admission"
	"github.com/snapetech/stbsync/internal/assets"
	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/channels"
	"github.com/snapetech/stbsync/internal/logos"
	"github.com/snapetech/stbsync/internal/metrics"
	"github.com/snapetech/stbsync/internal/remoteconfig"
	"github.com/snapetech/stbsync/internal/store"
	"github.com/snapetech/stbsync/internal/update"
)

const (
	DefaultInterval      = 5 * time.Minute
	DefaultAssetInterval = 30 * time.Minute

	SplashLogoName       = "logo_app.png"
	SplashBackgroundName = "background.png"
)

// Deps are the collaborators a cycle calls. Admission may be nil (every
// device admitted). Logos may be nil (splash images only).
type Deps struct {
	Store     *store.Store
	Config    *remoteconfig.Synchronizer
	Channels  *channels.Synchronizer
	Assets    *assets.Reconciler
	Logos     *logos.Manager
	Updates   *update.Checker
	Admission *admission.Checker
	Listener  Listener
}

// Options tune the schedule. Zero values take the defaults.
type Options struct {
	Interval      time.Duration
	AssetInterval time.Duration
	// Now is the clock used by the asset gate. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs sync cycles. Create with New; all methods are safe for
// concurrent use.
type Orchestrator struct {
	deps Deps
	opts Options

	running atomic.Bool
	trigger chan struct{}

	mu        sync.Mutex
	status    Status
	blocked   bool // the previous cycle halted on a service or device gate
	delivered bool // a channel list has been emitted since start
}

func New(d Deps, o Options) *Orchestrator {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.AssetInterval <= 0 {
		o.AssetInterval = DefaultAssetInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if d.Listener == nil {
		d.Listener = LogListener{}
	}
	s := &Orchestrator{deps: d, opts: o, trigger: make(chan struct{}, 1)}
	s.status.DeviceID = d.Admission.ID()
	s.status.DeviceEnabled = true
	if d.Assets != nil {
		d.Assets.Notify = func(t assets.Target) {
			s.emit(Event{Kind: AssetChanged, Asset: t.ID()})
		}
	}
	return s
}

// Run performs an immediate cycle and then one per Interval until ctx is
// cancelled. It waits for an in-flight cycle before returning.
func (s *Orchestrator) Run(ctx context.Context) {
	log.Printf("syncer: started interval=%s asset_interval=%s", s.opts.Interval, s.opts.AssetInterval)
	var wg sync.WaitGroup
	defer wg.Wait()

	s.launch(ctx, &wg, false)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("syncer: stopped")
			return
		case <-ticker.C:
			s.launch(ctx, &wg, true)
		case <-s.trigger:
			log.Printf("syncer: manual sync triggered")
			s.launch(ctx, &wg, true)
		}
	}
}

// Trigger requests a forced cycle from a running Run loop. Safe to call from
// any goroutine; a second request while one is pending is a no-op.
func (s *Orchestrator) Trigger() {
	select {
	case s.trigger <- struct{}{}:
		log.Printf("syncer: sync queued")
	default:
		log.Printf("syncer: sync already queued")
	}
}

// RunOnce runs a cycle on the caller's goroutine. It returns false without
// doing anything when another cycle is in flight.
func (s *Orchestrator) RunOnce(ctx context.Context, force bool) bool {
	if !s.acquire() {
		return false
	}
	defer s.running.Store(false)
	s.cycle(ctx, force)
	return true
}

func (s *Orchestrator) launch(ctx context.Context, wg *sync.WaitGroup, force bool) {
	if !s.acquire() {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.running.Store(false)
		s.cycle(ctx, force)
	}()
}

func (s *Orchestrator) acquire() bool {
	if s.running.CompareAndSwap(false, true) {
		return true
	}
	metrics.CyclesSkipped.Inc()
	s.mu.Lock()
	s.status.Skipped++
	s.mu.Unlock()
	log.Printf("syncer: cycle already running, skipping")
	return false
}

// Running reports whether a cycle is in flight.
func (s *Orchestrator) Running() bool { return s.running.Load() }

func (s *Orchestrator) emit(e Event) {
	s.deps.Listener.OnEvent(e)
}

func (s *Orchestrator) cycle(ctx context.Context, force bool) {
	start := time.Now()
	outcome := s.runCycle(ctx, force)
	elapsed := time.Since(start)

	metrics.Cycles.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		metrics.LastCycleSuccess.SetToCurrentTime()
	}

	s.mu.Lock()
	s.status.Cycles++
	s.status.Outcome = outcome
	s.status.LastCycleStart = start
	s.status.LastCycleEnd = start.Add(elapsed)
	s.mu.Unlock()
	log.Printf("syncer: cycle done outcome=%s force=%v elapsed=%s", outcome, force, elapsed.Round(time.Millisecond))
}

// Cycle outcomes, also used as the metrics label.
const (
	OutcomeOK          = "ok"
	OutcomeOffline     = "offline"
	OutcomeUnavailable = "unavailable"
	OutcomeMaintenance = "maintenance"
	OutcomeBlocked     = "device_blocked"
)

func (s *Orchestrator) runCycle(ctx context.Context, force bool) string {
	var res remoteconfig.Result
	if force {
		res = s.deps.Config.ForceSync(ctx)
	} else {
		res = s.deps.Config.Sync(ctx)
	}
	s.setStatus(func(st *Status) {
		st.ConfigSource = res.Source.String()
		st.LastError = errString(res.Err)
	})

	if !res.OK() {
		s.emit(Event{Kind: OfflineNoConfig, Err: res.Err})
		// The channel list stays watchable from cache while offline.
		s.deliverChannels(s.deps.Channels.Cached())
		return OutcomeOffline
	}
	cfg := res.Config

	state := cfg.State()
	s.setStatus(func(st *Status) {
		st.ServiceState = state.String()
		st.Message = cfg.Service.Message
	})
	switch state {
	case remoteconfig.StateUnavailable:
		s.halt()
		s.emit(Event{Kind: ServiceUnavailable, Message: cfg.Service.Message})
		return OutcomeUnavailable
	case remoteconfig.StateMaintenance:
		s.halt()
		s.emit(Event{Kind: Maintenance, Message: cfg.Service.Message})
		return OutcomeMaintenance
	}

	if s.deps.Admission != nil {
		d := s.deps.Admission.Check(ctx)
		s.setStatus(func(st *Status) {
			st.DeviceID = d.DeviceID
			st.DeviceEnabled = d.Enabled
		})
		if !d.Enabled {
			s.halt()
			s.emit(Event{Kind: DeviceBlocked, DeviceID: d.DeviceID})
			return OutcomeBlocked
		}
	}

	s.mu.Lock()
	wasBlocked := s.blocked
	s.blocked = false
	s.mu.Unlock()
	if wasBlocked {
		s.emit(Event{Kind: ServiceRestored})
	}

	s.checkUpdate(cfg.App)
	s.reconcileAssets(ctx, cfg.Splash)
	s.deliverChannels(s.deps.Channels.Refresh(ctx, cfg.Channels))
	return OutcomeOK
}

func (s *Orchestrator) halt() {
	s.mu.Lock()
	s.blocked = true
	s.mu.Unlock()
}

func (s *Orchestrator) checkUpdate(app remoteconfig.AppInfo) {
	if s.deps.Updates == nil {
		return
	}
	info := s.deps.Updates.Check(app)
	s.setStatus(func(st *Status) { st.Update = &info })
	if info.NameAhead && !info.Available {
		log.Printf("syncer: latest_version %q is ahead of %q but version_code %d is not", info.LatestVersion, info.CurrentVersion, info.LatestCode)
	}
	if s.deps.Updates.ShouldAnnounce(info) {
		s.emit(Event{Kind: UpdateAvailable, Update: &info})
	}
}

// reconcileAssets runs at most once per AssetInterval, tracked by a persisted
// timestamp so restarts do not re-check early. The timestamp only moves when
// at least one asset was fetched.
func (s *Orchestrator) reconcileAssets(ctx context.Context, splash remoteconfig.SplashConfig) {
	if s.deps.Assets == nil {
		return
	}
	now := s.opts.Now()
	last := s.deps.Store.GetTime(store.KeyAssetsCheckedAt)
	if !last.IsZero() && now.Sub(last) < s.opts.AssetInterval && !now.Before(last) {
		return
	}

	var targets []assets.Target
	if s.deps.Logos != nil {
		s.deps.Logos.Refresh(ctx)
		targets = append(targets, s.deps.Logos.Targets()...)
	}
	targets = append(targets, SplashTargets(splash)...)
	changed, fetched := s.deps.Assets.ReconcileMany(ctx, targets)

	if ctx.Err() != nil {
		return
	}
	// Nothing reached the asset host: leave the gate open for the next cycle.
	if fetched == 0 && len(targets) > 0 {
		log.Printf("syncer: no asset could be fetched, retrying next cycle")
		return
	}
	if err := s.deps.Store.SetTime(store.KeyAssetsCheckedAt, now); err != nil {
		log.Printf("syncer: persist asset check time: %v", err)
	}
	s.setStatus(func(st *Status) {
		st.AssetsCheckedAt = now
		st.AssetsChanged = changed
	})
}

// SplashTargets maps the splash section onto fixed cache slots.
func SplashTargets(sp remoteconfig.SplashConfig) []assets.Target {
	var out []assets.Target
	if sp.LogoURL != "" {
		out = append(out, assets.Target{Kind: cache.KindSplash, Name: SplashLogoName, URL: sp.LogoURL})
	}
	if sp.BackgroundURL != "" {
		out = append(out, assets.Target{Kind: cache.KindSplash, Name: SplashBackgroundName, URL: sp.BackgroundURL})
	}
	return out
}

// deliverChannels emits the list when it changed, or when this process has
// not yet handed one to the UI.
func (s *Orchestrator) deliverChannels(r channels.Result) {
	s.setStatus(func(st *Status) {
		st.ChannelsVersion = r.Version
		st.ChannelEntries = len(r.Entries)
		st.ChannelsSource = r.Source.String()
	})
	if r.Source == channels.SourceNone {
		s.emit(Event{Kind: ChannelsUnavailable, Err: r.Err})
		return
	}
	s.mu.Lock()
	first := !s.delivered
	s.delivered = true
	s.mu.Unlock()
	if r.Changed || first {
		s.emit(Event{Kind: ChannelsChanged, Channels: r.Entries, ChannelsVersion: r.Version})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
