package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Blob kinds.
const (
	KindChannels = "channels"
	KindLogos    = "logos"
	KindSplash   = "splash"
)

// ErrNotFound is returned by Read for an empty slot.
var ErrNotFound = errors.New("cache: blob not found")

// Blobs stores downloaded documents and images in named slots under one directory.
// Writes go to a .partial file and are renamed into place, so a slot is either
// the old bytes or the new bytes, never a torn write.
type Blobs struct {
	fs  afero.Fs
	dir string
}

// NewBlobs uses fsys rooted at dir. Pass afero.NewMemMapFs() in tests.
func NewBlobs(fsys afero.Fs, dir string) *Blobs {
	return &Blobs{fs: fsys, dir: dir}
}

// NewOSBlobs stores blobs on the real filesystem.
func NewOSBlobs(dir string) *Blobs {
	return NewBlobs(afero.NewOsFs(), dir)
}

// Fs exposes the underlying filesystem (read-only consumers such as the mount).
func (b *Blobs) Fs() afero.Fs { return b.fs }

// Dir is the root directory.
func (b *Blobs) Dir() string { return b.dir }

// Path is the final location of a slot.
func (b *Blobs) Path(kind, name string) string {
	return Path(b.dir, kind, name)
}

// Write replaces the slot contents atomically.
func (b *Blobs) Write(kind, name string, data []byte) error {
	final := b.Path(kind, name)
	if err := b.fs.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	tmp := PartialPath(b.dir, kind, name)
	f, err := b.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("cache: sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("cache: close %s: %w", tmp, err)
	}
	if err := b.fs.Rename(tmp, final); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("cache: rename %s: %w", final, err)
	}
	return nil
}

// Read returns the slot contents or ErrNotFound.
func (b *Blobs) Read(kind, name string) ([]byte, error) {
	data, err := afero.ReadFile(b.fs, b.Path(kind, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read %s/%s: %w", kind, name, err)
	}
	return data, nil
}

// Exists reports whether the slot holds a complete blob.
func (b *Blobs) Exists(kind, name string) bool {
	fi, err := b.fs.Stat(b.Path(kind, name))
	return err == nil && fi.Mode().IsRegular()
}

func (b *Blobs) Remove(kind, name string) error {
	err := b.fs.Remove(b.Path(kind, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: remove %s/%s: %w", kind, name, err)
	}
	return nil
}

// RemoveKind deletes every slot of one kind.
func (b *Blobs) RemoveKind(kind string) error {
	if err := b.fs.RemoveAll(filepath.Join(b.dir, sanitizeID(kind))); err != nil {
		return fmt.Errorf("cache: remove %s: %w", kind, err)
	}
	return nil
}

// List returns the complete slot names of one kind, sorted.
func (b *Blobs) List(kind string) ([]string, error) {
	infos, err := afero.ReadDir(b.fs, filepath.Join(b.dir, sanitizeID(kind)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", kind, err)
	}
	var names []string
	for _, fi := range infos {
		if !fi.Mode().IsRegular() || strings.HasSuffix(fi.Name(), ".partial") {
			continue
		}
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}
