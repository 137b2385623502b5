package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Unset fields leave the env-derived value alone.
type fileConfig struct {
	BaseURL        string `yaml:"base_url"`
	ConfigURL      string `yaml:"config_url"`
	LogoMappingURL string `yaml:"logo_mapping_url"`
	LogoBaseURL    string `yaml:"logo_base_url"`
	DevicesURL     string `yaml:"devices_url"`

	DataDir      string `yaml:"data_dir"`
	StoreBackend string `yaml:"store"`
	StorePath    string `yaml:"store_path"`
	MountPoint   string `yaml:"mount_point"`

	PollInterval       string `yaml:"poll_interval"`
	AssetCheckInterval string `yaml:"asset_check_interval"`
	FetchTimeout       string `yaml:"fetch_timeout"`

	HostRate  *float64 `yaml:"host_rate"`
	HostBurst *int     `yaml:"host_burst"`
	ProxyURL  string   `yaml:"proxy"`
	NoProxy   string   `yaml:"no_proxy"`

	AppVersion     string `yaml:"app_version"`
	AppVersionCode *int   `yaml:"app_version_code"`
	DeviceID       string `yaml:"device_id"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// LoadFile overlays the YAML file at path onto c. Derived URLs are
// recomputed when base_url changes and the specific URL was not given.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	if fc.BaseURL != "" && strings.TrimRight(fc.BaseURL, "/") != c.BaseURL {
		c.BaseURL = strings.TrimRight(fc.BaseURL, "/")
		c.ConfigURL, c.LogoMappingURL, c.LogoBaseURL = "", "", ""
	}
	setString(&c.ConfigURL, fc.ConfigURL)
	setString(&c.LogoMappingURL, fc.LogoMappingURL)
	setString(&c.LogoBaseURL, fc.LogoBaseURL)
	setString(&c.DevicesURL, fc.DevicesURL)
	if fc.DataDir != "" && fc.DataDir != c.DataDir {
		c.DataDir = fc.DataDir
		if fc.StorePath == "" {
			c.StorePath = ""
		}
	}
	if fc.StoreBackend != "" && !strings.EqualFold(fc.StoreBackend, c.StoreBackend) {
		c.StoreBackend = strings.ToLower(fc.StoreBackend)
		if fc.StorePath == "" {
			c.StorePath = ""
		}
	}
	setString(&c.StorePath, fc.StorePath)
	setString(&c.MountPoint, fc.MountPoint)
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"asset_check_interval", fc.AssetCheckInterval, &c.AssetCheckInterval},
		{"fetch_timeout", fc.FetchTimeout, &c.FetchTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, d.name, err)
		}
		*d.dst = v
	}
	if fc.HostRate != nil {
		c.HostRate = *fc.HostRate
	}
	if fc.HostBurst != nil {
		c.HostBurst = *fc.HostBurst
	}
	setString(&c.ProxyURL, fc.ProxyURL)
	setString(&c.NoProxy, fc.NoProxy)
	setString(&c.AppVersion, fc.AppVersion)
	if fc.AppVersionCode != nil {
		c.AppVersionCode = *fc.AppVersionCode
	}
	setString(&c.DeviceID, fc.DeviceID)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	c.fillDerived()
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
