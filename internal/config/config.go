package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/stbsync/internal/safeurl"
)

// DefaultBaseURL is the static host serving config.json, the playlist and assets.
const DefaultBaseURL = "https://artemon4es.github.io/tv-channels-api"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config holds remote endpoints, local paths and sync timing.
// Load from env, then optionally overlay a YAML file with LoadFile.
type Config struct {
	// Remote endpoints. Empty values are derived from BaseURL in Load.
	BaseURL        string // e.g. https://host/tv-channels-api
	ConfigURL      string // <base>/api/config.json
	LogoMappingURL string // <base>/api/channel-mapping.json
	LogoBaseURL    string // <base>/files/channel-logos
	DevicesURL     string // <base>/api/devices/config.json; "" disables admission

	// Paths
	DataDir      string // blobs (playlist, logos, splash) live under DataDir/cache
	StoreBackend string // sqlite | bolt | memory
	StorePath    string // "" = DataDir/state.db (sqlite) or DataDir/state.bolt (bolt)
	MountPoint   string // optional FUSE mount of synced outputs

	// Timing
	PollInterval       time.Duration // periodic cycle interval (default 5m)
	AssetCheckInterval time.Duration // minimum gap between logo/splash reconciliations (default 30m)
	FetchTimeout       time.Duration // hard per-fetch timeout (default 10s)

	// Transport
	HostRate  float64 // requests per second per host; 0 = unlimited
	HostBurst int
	ProxyURL  string // http(s) proxy; "" = use HTTP_PROXY/HTTPS_PROXY from env
	NoProxy   string

	// Running application, for the update check.
	AppVersion     string
	AppVersionCode int

	// Device admission
	DeviceID string // "" = generate once and persist

	// Status server (/metrics, /healthz, /status); "" disables.
	MetricsAddr string
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		BaseURL:            strings.TrimRight(getEnv("STB_SYNC_BASE_URL", DefaultBaseURL), "/"),
		ConfigURL:          os.Getenv("STB_SYNC_CONFIG_URL"),
		LogoMappingURL:     os.Getenv("STB_SYNC_LOGO_MAPPING_URL"),
		LogoBaseURL:        os.Getenv("STB_SYNC_LOGO_BASE_URL"),
		DevicesURL:         os.Getenv("STB_SYNC_DEVICES_URL"),
		DataDir:            getEnv("STB_SYNC_DATA_DIR", "./stb-data"),
		StoreBackend:       strings.ToLower(getEnv("STB_SYNC_STORE", BackendSQLite)),
		StorePath:          os.Getenv("STB_SYNC_STORE_PATH"),
		MountPoint:         os.Getenv("STB_SYNC_MOUNT"),
		PollInterval:       getEnvDuration("STB_SYNC_POLL_INTERVAL", 5*time.Minute),
		AssetCheckInterval: getEnvDuration("STB_SYNC_ASSET_INTERVAL", 30*time.Minute),
		FetchTimeout:       getEnvDuration("STB_SYNC_FETCH_TIMEOUT", 10*time.Second),
		HostRate:           getEnvFloat("STB_SYNC_HOST_RATE", 0),
		HostBurst:          getEnvInt("STB_SYNC_HOST_BURST", 4),
		ProxyURL:           os.Getenv("STB_SYNC_PROXY"),
		NoProxy:            os.Getenv("STB_SYNC_NO_PROXY"),
		AppVersion:         getEnv("STB_SYNC_APP_VERSION", "1.0"),
		AppVersionCode:     getEnvInt("STB_SYNC_APP_VERSION_CODE", 1),
		DeviceID:           os.Getenv("STB_SYNC_DEVICE_ID"),
		MetricsAddr:        os.Getenv("STB_SYNC_METRICS_ADDR"),
	}
	if getEnvBool("STB_SYNC_ADMISSION", false) && c.DevicesURL == "" {
		c.DevicesURL = safeurl.Join(c.BaseURL, "api", "devices", "config.json")
	}
	c.fillDerived()
	return c
}

// fillDerived sets endpoint URLs and the store path that were left empty.
func (c *Config) fillDerived() {
	if c.ConfigURL == "" {
		c.ConfigURL = safeurl.Join(c.BaseURL, "api", "config.json")
	}
	if c.LogoMappingURL == "" {
		c.LogoMappingURL = safeurl.Join(c.BaseURL, "api", "channel-mapping.json")
	}
	if c.LogoBaseURL == "" {
		c.LogoBaseURL = safeurl.Join(c.BaseURL, "files", "channel-logos")
	}
	if c.StorePath == "" {
		switch c.StoreBackend {
		case BackendBolt:
			c.StorePath = filepath.Join(c.DataDir, "state.bolt")
		case BackendSQLite:
			c.StorePath = filepath.Join(c.DataDir, "state.db")
		}
	}
}

// CacheDir is where blob slots are written.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Validate reports every setting that would make the syncer misbehave.
func (c *Config) Validate() error {
	var errs []error
	for name, u := range map[string]string{
		"base url":         c.BaseURL,
		"config url":       c.ConfigURL,
		"logo mapping url": c.LogoMappingURL,
		"logo base url":    c.LogoBaseURL,
	} {
		if !safeurl.IsHTTPOrHTTPS(u) {
			errs = append(errs, fmt.Errorf("%s %q: must be http(s)", name, u))
		}
	}
	if c.DevicesURL != "" && !safeurl.IsHTTPOrHTTPS(c.DevicesURL) {
		errs = append(errs, fmt.Errorf("devices url %q: must be http(s)", c.DevicesURL))
	}
	switch c.StoreBackend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store backend %q: want sqlite, bolt or memory", c.StoreBackend))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.FetchTimeout > c.PollInterval {
		errs = append(errs, fmt.Errorf("fetch timeout %s exceeds poll interval %s", c.FetchTimeout, c.PollInterval))
	}
	if c.AssetCheckInterval < 0 {
		errs = append(errs, errors.New("asset check interval must not be negative"))
	}
	if c.HostRate < 0 {
		errs = append(errs, errors.New("host rate must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
