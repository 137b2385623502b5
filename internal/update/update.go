// Package update decides whether the remote config announces a newer build
// than the one running.
package update

import (
	"log"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/snapetech/stbsync/internal/remoteconfig"
	"github.com/snapetech/stbsync/internal/store"
)

// Info describes the update state for one config snapshot.
type Info struct {
	CurrentVersion string
	CurrentCode    int64
	LatestVersion  string
	LatestCode     int64
	DownloadURL    string
	Changelog      string

	// Available is true when the remote build code is higher and there is
	// something to download.
	Available bool
	// Required marks a mandatory update; only meaningful with Available.
	Required bool
	// NameAhead is set when the version name is newer but the code was not
	// bumped; such a release is not offered.
	NameAhead bool
}

// Checker compares remote app info with the running build.
type Checker struct {
	currentVersion string
	currentCode    int64
	store          *store.Store
}

// NewChecker: st records which build code was last announced; nil disables that.
func NewChecker(currentVersion string, currentCode int, st *store.Store) *Checker {
	return &Checker{currentVersion: currentVersion, currentCode: int64(currentCode), store: st}
}

// Check builds Info for app. Build codes decide; version names only inform.
func (c *Checker) Check(app remoteconfig.AppInfo) Info {
	info := Info{
		CurrentVersion: c.currentVersion,
		CurrentCode:    c.currentCode,
		LatestVersion:  app.LatestVersion,
		LatestCode:     app.VersionCode,
		DownloadURL:    app.DownloadURL,
		Changelog:      app.Changelog,
	}
	info.Available = app.VersionCode > c.currentCode && strings.TrimSpace(app.DownloadURL) != ""
	info.Required = info.Available && app.UpdateRequired
	if !info.Available && app.VersionCode <= c.currentCode {
		info.NameAhead = newerName(app.LatestVersion, c.currentVersion)
	}
	return info
}

// ShouldAnnounce reports whether info is worth an event: a required update
// every time, an optional one once per build code.
func (c *Checker) ShouldAnnounce(info Info) bool {
	if !info.Available {
		return false
	}
	if info.Required || c.store == nil {
		return true
	}
	last := c.store.GetInt(store.KeyUpdateNotified, 0)
	if info.LatestCode <= last {
		return false
	}
	if err := c.store.SetInt(store.KeyUpdateNotified, info.LatestCode); err != nil {
		log.Printf("update: record announcement: %v", err)
	}
	return true
}

// newerName compares version names; unparseable names never count as newer.
func newerName(latest, current string) bool {
	l, err := version.NewVersion(strings.TrimPrefix(strings.TrimSpace(latest), "v"))
	if err != nil {
		return false
	}
	cur, err := version.NewVersion(strings.TrimPrefix(strings.TrimSpace(current), "v"))
	if err != nil {
		return false
	}
	return l.GreaterThan(cur)
}
