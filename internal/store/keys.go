package store

// Keys shared across components. Each owner writes only its own keys.
const (
	KeyConfigCache      = "config.cache"
	KeyChannelsVersion  = "channels.version"
	KeyLogoMapping      = "logos.mapping"
	KeyAssetsCheckedAt  = "assets.checked_at"
	KeyDeviceID         = "device.id"
	KeyDeviceEnabled    = "device.enabled"
	KeyUpdateNotified   = "update.notified_code"

	assetHashPrefix = "asset.hash."
)

// AssetHashKey is the key holding the content hash for the named asset.
func AssetHashKey(name string) string {
	return assetHashPrefix + name
}

// AssetHashPrefix is the key prefix for every asset hash of one kind
// ("" for all kinds).
func AssetHashPrefix(kind string) string {
	if kind == "" {
		return assetHashPrefix
	}
	return assetHashPrefix + kind + "/"
}
