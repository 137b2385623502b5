package syncer

import (
	"log"

	"github.com/snapetech/stbsync/internal/channels"
	"github.com/snapetech/stbsync/internal/update"
)

// EventKind identifies what a cycle wants the UI layer to do.
type EventKind int

const (
	// ServiceUnavailable: show the unavailable screen with Message.
	ServiceUnavailable EventKind = iota + 1
	// Maintenance: show the maintenance screen with Message.
	Maintenance
	// ServiceRestored: a previously blocked device may return to normal operation.
	ServiceRestored
	// OfflineNoConfig: no config could be fetched and none is cached.
	OfflineNoConfig
	// DeviceBlocked: the admission policy denies this device.
	DeviceBlocked
	// UpdateAvailable: a newer build is published; see Update.
	UpdateAvailable
	// ChannelsChanged: Channels holds the list to display.
	ChannelsChanged
	// ChannelsUnavailable: no channel list could be fetched or read from cache.
	ChannelsUnavailable
	// AssetChanged: the cached bytes of Asset were replaced.
	AssetChanged
)

func (k EventKind) String() string {
	switch k {
	case ServiceUnavailable:
		return "service_unavailable"
	case Maintenance:
		return "maintenance"
	case ServiceRestored:
		return "service_restored"
	case OfflineNoConfig:
		return "offline_no_config"
	case DeviceBlocked:
		return "device_blocked"
	case UpdateAvailable:
		return "update_available"
	case ChannelsChanged:
		return "channels_changed"
	case ChannelsUnavailable:
		return "channels_unavailable"
	case AssetChanged:
		return "asset_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to a Listener. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Message         string
	DeviceID        string
	Update          *update.Info
	Channels        []channels.Entry
	ChannelsVersion int64
	Asset           string // "<kind>/<name>"
	Err             error
}

// Listener receives events from the sync goroutine. OnEvent must not block.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// ChanListener forwards events to C, dropping them when C is full.
type ChanListener struct {
	C chan Event
}

func NewChanListener(buffer int) *ChanListener {
	return &ChanListener{C: make(chan Event, buffer)}
}

func (l *ChanListener) OnEvent(e Event) {
	select {
	case l.C <- e:
	default:
		log.Printf("syncer: event %s dropped, listener full", e.Kind)
	}
}

// LogListener writes each event to the log.
type LogListener struct{}

func (LogListener) OnEvent(e Event) {
	switch e.Kind {
	case ServiceUnavailable, Maintenance:
		log.Printf("syncer: event=%s message=%q", e.Kind, e.Message)
	case DeviceBlocked:
		log.Printf("syncer: event=%s device=%s", e.Kind, e.DeviceID)
	case UpdateAvailable:
		log.Printf("syncer: event=%s latest=%s code=%d required=%v url=%s",
			e.Kind, e.Update.LatestVersion, e.Update.LatestCode, e.Update.Required, e.Update.DownloadURL)
	case ChannelsChanged:
		log.Printf("syncer: event=%s version=%d entries=%d", e.Kind, e.ChannelsVersion, len(e.Channels))
	case AssetChanged:
		log.Printf("syncer: event=%s asset=%s", e.Kind, e.Asset)
	case OfflineNoConfig, ChannelsUnavailable:
		log.Printf("syncer: event=%s err=%v", e.Kind, e.Err)
	default:
		log.Printf("syncer: event=%s", e.Kind)
	}
}

// Listeners fans one event out to several listeners in order.
type Listeners []Listener

func (ls Listeners) OnEvent(e Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(e)
		}
	}
}
