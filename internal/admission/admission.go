// Package admission decides whether this device may use the service, from a
// remote per-device policy document, and keeps the device identity.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/snapetech/stbsync/internal/fetch"
	"github.com/snapetech/stbsync/internal/store"
)

const deviceIDPrefix = "stbsync_"

// Policy is the devices document.
type Policy struct {
	DefaultServiceEnabled *bool                   `json:"default_service_enabled"`
	Devices               map[string]DevicePolicy `json:"devices"`
}

type DevicePolicy struct {
	ServiceEnabled *bool `json:"service_enabled"`
}

// Enabled applies the policy to id. Unset values mean enabled.
func (p Policy) Enabled(id string) bool {
	if d, ok := p.Devices[id]; ok {
		if d.ServiceEnabled == nil {
			return true
		}
		return *d.ServiceEnabled
	}
	if p.DefaultServiceEnabled == nil {
		return true
	}
	return *p.DefaultServiceEnabled
}

// Decision is the outcome of one check.
type Decision struct {
	DeviceID string
	Enabled  bool
	// FromCache is true when the policy could not be fetched and the last
	// stored decision was used.
	FromCache bool
	Err       error
}

// Checker fetches the policy. A nil *Checker (no policy URL) admits everyone.
type Checker struct {
	fetcher fetch.Getter
	store   *store.Store
	url     string
	id      string
}

// NewChecker returns nil when url is empty. deviceID "" means use (or create)
// the persisted identity.
func NewChecker(f fetch.Getter, st *store.Store, url, deviceID string) *Checker {
	if url == "" {
		return nil
	}
	return &Checker{fetcher: f, store: st, url: url, id: DeviceID(st, deviceID)}
}

// DeviceID returns override when set, else the persisted ID, generating and
// storing one on first use.
func DeviceID(st *store.Store, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if id, ok := st.Lookup(store.KeyDeviceID); ok && id != "" {
		return id
	}
	id := deviceIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if err := st.SetString(store.KeyDeviceID, id); err != nil {
		log.Printf("admission: persist device id: %v", err)
	}
	return id
}

// ID is the identity the policy is evaluated for.
func (c *Checker) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Check fetches the policy and stores the decision. On any failure the last
// stored decision applies (enabled if none).
func (c *Checker) Check(ctx context.Context) Decision {
	if c == nil {
		return Decision{Enabled: true}
	}
	res, err := c.fetcher.Fetch(ctx, "devices", c.url, http.Header{"X-Device-Id": {c.id}})
	if err == nil {
		var p Policy
		if jerr := json.Unmarshal(res.Body, &p); jerr != nil {
			err = fmt.Errorf("admission: malformed policy: %w", jerr)
		} else {
			enabled := p.Enabled(c.id)
			if serr := c.store.SetInt(store.KeyDeviceEnabled, boolInt(enabled)); serr != nil {
				log.Printf("admission: persist decision: %v", serr)
			}
			return Decision{DeviceID: c.id, Enabled: enabled}
		}
	}
	log.Printf("admission: policy unavailable, using stored decision err=%s", fetch.Describe(err))
	return Decision{
		DeviceID:  c.id,
		Enabled:   c.store.GetInt(store.KeyDeviceEnabled, 1) != 0,
		FromCache: true,
		Err:       err,
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
