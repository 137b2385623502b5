package store

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("state")

var errBucketNotFound = errors.New("bucket not found")

// Bolt is a Backend on a single bbolt bucket.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the bolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(boltBucket)
		if bk == nil {
			return errBucketNotFound
		}
		raw := bk.Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, ok = string(raw), true
		return nil
	})
	return v, ok, err
}

func (b *Bolt) Put(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(boltBucket)
		if bk == nil {
			return errBucketNotFound
		}
		return bk.Put([]byte(key), []byte(value))
	})
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(boltBucket)
		if bk == nil {
			return errBucketNotFound
		}
		return bk.Delete([]byte(key))
	})
}

func (b *Bolt) DeletePrefix(prefix string) error {
	p := []byte(prefix)
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(boltBucket)
		if bk == nil {
			return errBucketNotFound
		}
		var keys [][]byte
		c := bk.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
