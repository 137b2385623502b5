package syncer

import (
	"time"

	"github.com/snapetech/stbsync/internal/update"
)

// Status is a point-in-time view of the last cycle, served on /status.
type Status struct {
	Outcome        string    `json:"outcome,omitempty"`
	LastCycleStart time.Time `json:"last_cycle_start,omitzero"`
	LastCycleEnd   time.Time `json:"last_cycle_end,omitzero"`
	Cycles         int64     `json:"cycles"`
	Skipped        int64     `json:"skipped"`
	Running        bool      `json:"running"`

	ConfigSource string `json:"config_source,omitempty"`
	ServiceState string `json:"service_state,omitempty"`
	Message      string `json:"message,omitempty"`
	LastError    string `json:"last_error,omitempty"`

	DeviceID      string `json:"device_id,omitempty"`
	DeviceEnabled bool   `json:"device_enabled"`

	ChannelsVersion int64  `json:"channels_version"`
	ChannelEntries  int    `json:"channel_entries"`
	ChannelsSource  string `json:"channels_source,omitempty"`

	AssetsCheckedAt time.Time `json:"assets_checked_at,omitzero"`
	AssetsChanged   int       `json:"assets_changed"`

	Update *update.Info `json:"update,omitempty"`
}

// Status returns a copy of the current status.
func (s *Orchestrator) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if st.Update != nil {
		u := *st.Update
		st.Update = &u
	}
	st.Running = s.running.Load()
	return st
}

func (s *Orchestrator) setStatus(f func(*Status)) {
	s.mu.Lock()
	f(&s.status)
	s.mu.Unlock()
}
