package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]*Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]*Store{}
	for _, tc := range []struct{ backend, file string }{
		{"memory", ""},
		{"sqlite", "state.db"},
		{"bolt", "state.bolt"},
	} {
		path := ""
		if tc.file != "" {
			path = filepath.Join(dir, tc.backend, tc.file)
		}
		s, err := Open(tc.backend, path)
		require.NoError(t, err, tc.backend)
		t.Cleanup(func() { s.Close() })
		out[tc.backend] = s
	}
	return out
}

func TestStore_defaults(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, "def", s.GetString("missing", "def"))
			require.Equal(t, int64(0), s.GetInt(KeyChannelsVersion, 0))
			require.True(t, s.GetTime(KeyAssetsCheckedAt).IsZero())
			_, ok := s.Lookup("missing")
			require.False(t, ok)
		})
	}
}

func TestStore_setGetRemove(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetString(KeyConfigCache, `{"a":1}`))
			require.NoError(t, s.SetInt(KeyChannelsVersion, 3))
			require.Equal(t, `{"a":1}`, s.GetString(KeyConfigCache, ""))
			require.Equal(t, int64(3), s.GetInt(KeyChannelsVersion, 0))

			require.NoError(t, s.SetInt(KeyChannelsVersion, 4))
			require.Equal(t, int64(4), s.GetInt(KeyChannelsVersion, 0))

			require.ErrorIs(t, s.SetString("", "empty-key"), ErrEmptyKey)
			require.ErrorIs(t, s.SetInt("", 1), ErrEmptyKey)
			require.ErrorIs(t, s.Remove(""), ErrEmptyKey)
			require.Equal(t, "x", s.GetString("", "x"))

			require.NoError(t, s.Remove(KeyConfigCache))
			require.Equal(t, "gone", s.GetString(KeyConfigCache, "gone"))
			require.NoError(t, s.Remove("never-set"))
		})
	}
}

func TestStore_emptyValueIsPresent(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetString("k", ""))
			v, ok := s.Lookup("k")
			require.True(t, ok)
			require.Equal(t, "", v)
		})
	}
}

func TestStore_nonIntegerFallsBack(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetString(KeyChannelsVersion, "three"))
			require.Equal(t, int64(9), s.GetInt(KeyChannelsVersion, 9))
		})
	}
}

func TestStore_time(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetTime(KeyAssetsCheckedAt, now))
			require.True(t, now.Equal(s.GetTime(KeyAssetsCheckedAt)))
		})
	}
}

func TestStore_removePrefixAndClear(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetString(AssetHashKey("logos/ntv.png"), "h1"))
			require.NoError(t, s.SetString(AssetHashKey("logos/tnt.png"), "h2"))
			require.NoError(t, s.SetString(AssetHashKey("splash/logo_app.png"), "h3"))
			require.NoError(t, s.SetInt(KeyChannelsVersion, 2))

			require.NoError(t, s.RemovePrefix(AssetHashPrefix("logos")))
			require.Equal(t, "", s.GetString(AssetHashKey("logos/ntv.png"), ""))
			require.Equal(t, "", s.GetString(AssetHashKey("logos/tnt.png"), ""))
			require.Equal(t, "h3", s.GetString(AssetHashKey("splash/logo_app.png"), ""))

			require.Error(t, s.RemovePrefix(""))

			require.NoError(t, s.Clear())
			require.Equal(t, "", s.GetString(AssetHashKey("splash/logo_app.png"), ""))
			require.Equal(t, int64(0), s.GetInt(KeyChannelsVersion, 0))
		})
	}
}

func TestStore_persistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"sqlite", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(dir, backend+".db")
			s, err := Open(backend, path)
			require.NoError(t, err)
			require.NoError(t, s.SetInt(KeyChannelsVersion, 5))
			require.NoError(t, s.Close())

			s2, err := Open(backend, path)
			require.NoError(t, err)
			defer s2.Close()
			require.Equal(t, int64(5), s2.GetInt(KeyChannelsVersion, 0))
		})
	}
}

func TestOpen_errors(t *testing.T) {
	_, err := Open("redis", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported backend")

	_, err = Open("sqlite", "")
	require.Error(t, err)
}

func TestAssetHashPrefix(t *testing.T) {
	require.Equal(t, "asset.hash.", AssetHashPrefix(""))
	require.Equal(t, "asset.hash.logos/", AssetHashPrefix("logos"))
	require.Equal(t, "asset.hash.logos/ntv.png", AssetHashKey("logos/ntv.png"))
}
