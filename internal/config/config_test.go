package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL, DefaultBaseURL)
	}
	if c.ConfigURL != DefaultBaseURL+"/api/config.json" {
		t.Errorf("ConfigURL = %q", c.ConfigURL)
	}
	if c.LogoBaseURL != DefaultBaseURL+"/files/channel-logos" {
		t.Errorf("LogoBaseURL = %q", c.LogoBaseURL)
	}
	if c.DevicesURL != "" {
		t.Errorf("DevicesURL = %q, want empty (admission off)", c.DevicesURL)
	}
	if c.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", c.PollInterval)
	}
	if c.AssetCheckInterval != 30*time.Minute {
		t.Errorf("AssetCheckInterval = %v, want 30m", c.AssetCheckInterval)
	}
	if c.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", c.FetchTimeout)
	}
	if c.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q", c.StoreBackend)
	}
	if c.StorePath != filepath.Join("./stb-data", "state.db") {
		t.Errorf("StorePath = %q", c.StorePath)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_baseURLDerivesEndpoints(t *testing.T) {
	os.Clearenv()
	os.Setenv("STB_SYNC_BASE_URL", "http://mirror.local/tv/")
	os.Setenv("STB_SYNC_ADMISSION", "true")
	c := Load()
	if c.BaseURL != "http://mirror.local/tv" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c.ConfigURL != "http://mirror.local/tv/api/config.json" {
		t.Errorf("ConfigURL = %q", c.ConfigURL)
	}
	if c.DevicesURL != "http://mirror.local/tv/api/devices/config.json" {
		t.Errorf("DevicesURL = %q", c.DevicesURL)
	}
}

func TestLoad_explicitOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("STB_SYNC_CONFIG_URL", "https://other/config.json")
	os.Setenv("STB_SYNC_STORE", "BOLT")
	os.Setenv("STB_SYNC_DATA_DIR", "/var/lib/stb")
	os.Setenv("STB_SYNC_POLL_INTERVAL", "90s")
	os.Setenv("STB_SYNC_HOST_RATE", "2.5")
	os.Setenv("STB_SYNC_APP_VERSION_CODE", "7")
	c := Load()
	if c.ConfigURL != "https://other/config.json" {
		t.Errorf("ConfigURL = %q", c.ConfigURL)
	}
	if c.StoreBackend != BackendBolt {
		t.Errorf("StoreBackend = %q", c.StoreBackend)
	}
	if c.StorePath != "/var/lib/stb/state.bolt" {
		t.Errorf("StorePath = %q", c.StorePath)
	}
	if c.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v", c.PollInterval)
	}
	if c.HostRate != 2.5 {
		t.Errorf("HostRate = %v", c.HostRate)
	}
	if c.AppVersionCode != 7 {
		t.Errorf("AppVersionCode = %d", c.AppVersionCode)
	}
}

func TestLoad_badNumbersKeepDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("STB_SYNC_APP_VERSION_CODE", "seven")
	os.Setenv("STB_SYNC_FETCH_TIMEOUT", "soon")
	c := Load()
	if c.AppVersionCode != 1 {
		t.Errorf("AppVersionCode = %d, want 1", c.AppVersionCode)
	}
	if c.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", c.FetchTimeout)
	}
}

func TestValidate(t *testing.T) {
	os.Clearenv()
	tests := []struct {
		name   string
		mutate func(c *Config)
		substr string
	}{
		{"bad backend", func(c *Config) { c.StoreBackend = "redis" }, "store backend"},
		{"file url", func(c *Config) { c.ConfigURL = "file:///etc/passwd" }, "config url"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"timeout over interval", func(c *Config) { c.FetchTimeout = time.Hour }, "exceeds poll interval"},
		{"bad devices url", func(c *Config) { c.DevicesURL = "ftp://x" }, "devices url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestLoadFile_overlay(t *testing.T) {
	os.Clearenv()
	os.Setenv("STB_SYNC_APP_VERSION", "2.0")
	c := Load()
	path := filepath.Join(t.TempDir(), "stb.yaml")
	data := `base_url: https://mirror.example/api-root/
store: memory
poll_interval: 2m
host_rate: 1
app_version_code: 12
metrics_addr: ":9105"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.ConfigURL != "https://mirror.example/api-root/api/config.json" {
		t.Errorf("ConfigURL = %q", c.ConfigURL)
	}
	if c.StoreBackend != BackendMemory || c.StorePath != "" {
		t.Errorf("store = %q path %q", c.StoreBackend, c.StorePath)
	}
	if c.PollInterval != 2*time.Minute {
		t.Errorf("PollInterval = %v", c.PollInterval)
	}
	if c.HostRate != 1 {
		t.Errorf("HostRate = %v", c.HostRate)
	}
	if c.AppVersionCode != 12 {
		t.Errorf("AppVersionCode = %d", c.AppVersionCode)
	}
	if c.AppVersion != "2.0" {
		t.Errorf("AppVersion = %q, env value should survive", c.AppVersion)
	}
	if c.MetricsAddr != ":9105" {
		t.Errorf("MetricsAddr = %q", c.MetricsAddr)
	}
}

func TestLoadFile_badDuration(t *testing.T) {
	os.Clearenv()
	c := Load()
	path := filepath.Join(t.TempDir(), "stb.yaml")
	if err := os.WriteFile(path, []byte("fetch_timeout: quickly\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := c.LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "fetch_timeout") {
		t.Fatalf("LoadFile err = %v, want fetch_timeout error", err)
	}
}
