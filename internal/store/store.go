// Package store is the single durable key-value state shared by every sync
// component.
//
// Each key is crash-consistent on its own; there are no multi-key
// transactions. Callers that need ordering (bytes before hash, playlist before
// version) write the keys in that order.
package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrEmptyKey is returned for writes and removals with an empty key.
var ErrEmptyKey = errors.New("store: empty key")

// Backend is a durable string-to-string table.
// Put must be durable before it returns.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
	Delete(key string) error
	DeletePrefix(prefix string) error
	Close() error
}

// Store adds typed accessors with defaults over a Backend.
// Read errors are logged and reported as the default value.
type Store struct {
	b Backend
}

// New wraps b.
func New(b Backend) *Store {
	return &Store{b: b}
}

// Open creates the store for the named backend ("sqlite", "bolt" or "memory").
// path is ignored for memory.
func Open(backend, path string) (*Store, error) {
	if backend != "memory" {
		if path == "" {
			return nil, fmt.Errorf("store: %s backend needs a path", backend)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	var (
		b   Backend
		err error
	)
	switch backend {
	case "sqlite":
		b, err = OpenSQLite(path)
	case "bolt":
		b, err = OpenBolt(path)
	case "memory":
		b = NewMemory()
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Lookup returns the stored value and whether the key exists.
func (s *Store) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok, err := s.b.Get(key)
	if err != nil {
		log.Printf("store: get %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (s *Store) GetString(key, def string) string {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}

// GetInt returns def when the key is absent or not an integer.
func (s *Store) GetInt(key string, def int64) int64 {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("store: %s is not an integer (%q), using %d", key, v, def)
		return def
	}
	return n
}

// GetTime returns the zero time when the key is absent.
func (s *Store) GetTime(key string) time.Time {
	ms := s.GetInt(key, 0)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *Store) SetString(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.b.Put(key, value); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetInt(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

func (s *Store) SetTime(key string, t time.Time) error {
	return s.SetInt(key, t.UnixMilli())
}

func (s *Store) Remove(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.b.Delete(key); err != nil {
		return fmt.Errorf("store: remove %s: %w", key, err)
	}
	return nil
}

// RemovePrefix deletes every key starting with prefix.
func (s *Store) RemovePrefix(prefix string) error {
	if prefix == "" {
		return errors.New("store: empty prefix; use Clear")
	}
	if err := s.b.DeletePrefix(prefix); err != nil {
		return fmt.Errorf("store: remove prefix %s: %w", prefix, err)
	}
	return nil
}

// Clear deletes every key.
func (s *Store) Clear() error {
	if err := s.b.DeletePrefix(""); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.b.Close()
}
