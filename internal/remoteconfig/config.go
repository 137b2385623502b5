// Package remoteconfig fetches and parses the root configuration document and
// falls back to the last good copy when the network or the document fails.
package remoteconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/snapetech/stbsync/internal/safeurl"
)

// ErrMalformedPayload marks a document that is not a JSON object.
var ErrMalformedPayload = errors.New("remoteconfig: malformed payload")

// Config is one parsed snapshot of the remote document. Every field has a
// default; see Defaults.
type Config struct {
	Service  ServiceConfig
	App      AppInfo
	Channels ChannelsConfig
	Splash   SplashConfig
}

type ServiceConfig struct {
	Available       bool   // service_available, default true
	MaintenanceMode bool   // maintenance_mode
	Message         string // shown on the unavailable / maintenance screen
}

type AppInfo struct {
	LatestVersion  string // latest_version, default "1.0"
	VersionCode    int64  // version_code, default 1
	DownloadURL    string
	UpdateRequired bool
	Changelog      string
}

type ChannelsConfig struct {
	Version           int64  // default 1
	URL               string // default <base>/files/channels.m3u8
	SecurityConfigURL string // default <base>/files/security_config.xml
}

type SplashConfig struct {
	Version       int64 // default 1
	LogoURL       string
	BackgroundURL string
}

// ServiceState is the branch a cycle takes.
type ServiceState int

const (
	StateAvailable ServiceState = iota
	StateUnavailable
	StateMaintenance
)

func (s ServiceState) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateMaintenance:
		return "maintenance"
	default:
		return "available"
	}
}

// State reports unavailable before maintenance: a disabled service wins.
func (c Config) State() ServiceState {
	if !c.Service.Available {
		return StateUnavailable
	}
	if c.Service.MaintenanceMode {
		return StateMaintenance
	}
	return StateAvailable
}

// Defaults returns the all-defaults snapshot for a host rooted at base.
func Defaults(base string) Config {
	return Config{
		Service: ServiceConfig{Available: true},
		App:     AppInfo{LatestVersion: "1.0", VersionCode: 1},
		Channels: ChannelsConfig{
			Version:           1,
			URL:               safeurl.Join(base, "files", "channels.m3u8"),
			SecurityConfigURL: safeurl.Join(base, "files", "security_config.xml"),
		},
		Splash: SplashConfig{
			Version:       1,
			LogoURL:       safeurl.Join(base, "files", "splash", "logo_app.png"),
			BackgroundURL: safeurl.Join(base, "files", "splash", "background.png"),
		},
	}
}

// Parse decodes data field by field. A missing or wrongly typed field takes
// its default; a missing or non-object section is all defaults. Only a
// document that is not a JSON object at all is rejected.
func Parse(data []byte, base string) (Config, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &root); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if root == nil {
		return Config{}, fmt.Errorf("%w: document is null", ErrMalformedPayload)
	}
	c := Defaults(base)

	svc := section(root, "service_config")
	c.Service.Available = boolField(svc, "service_available", c.Service.Available)
	c.Service.MaintenanceMode = boolField(svc, "maintenance_mode", c.Service.MaintenanceMode)
	c.Service.Message = stringField(svc, "message", c.Service.Message)

	app := section(root, "app_info")
	c.App.LatestVersion = stringField(app, "latest_version", c.App.LatestVersion)
	c.App.VersionCode = intField(app, "version_code", c.App.VersionCode)
	c.App.DownloadURL = urlField(app, "download_url", c.App.DownloadURL)
	c.App.UpdateRequired = boolField(app, "update_required", c.App.UpdateRequired)
	c.App.Changelog = stringField(app, "changelog", c.App.Changelog)

	ch := section(root, "channels_config")
	c.Channels.Version = intField(ch, "version", c.Channels.Version)
	c.Channels.URL = urlField(ch, "url", c.Channels.URL)
	c.Channels.SecurityConfigURL = urlField(ch, "security_config_url", c.Channels.SecurityConfigURL)

	sp := section(root, "splash_config")
	c.Splash.Version = intField(sp, "version", c.Splash.Version)
	c.Splash.LogoURL = urlField(sp, "logo_url", c.Splash.LogoURL)
	c.Splash.BackgroundURL = urlField(sp, "background_url", c.Splash.BackgroundURL)

	return c, nil
}

// section returns nil (all defaults) when name is absent or not an object.
func section(root map[string]json.RawMessage, name string) map[string]json.RawMessage {
	raw, ok := root[name]
	if !ok {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// lookup treats an explicit null like an absent field.
func lookup(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := m[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func stringField(m map[string]json.RawMessage, key, def string) string {
	raw, ok := lookup(m, key)
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return def
}

// urlField rejects anything but an absolute http(s) URL. An explicit empty
// string is kept (it means "none", e.g. no download available).
func urlField(m map[string]json.RawMessage, key, def string) string {
	v := stringField(m, key, def)
	if strings.TrimSpace(v) == "" {
		if _, present := lookup(m, key); present {
			return ""
		}
		return def
	}
	return safeurl.OrDefault(v, def)
}

// intField accepts any integer that fits in 64 bits, as a number or a numeric
// string. Fractions are truncated.
func intField(m map[string]json.RawMessage, key string, def int64) int64 {
	raw, ok := lookup(m, key)
	if !ok {
		return def
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, err := n.Float64()
		if err != nil || f >= math.MaxInt64 || f < math.MinInt64 {
			return def
		}
		return int64(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func boolField(m map[string]json.RawMessage, key string, def bool) bool {
	raw, ok := lookup(m, key)
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return def
}
