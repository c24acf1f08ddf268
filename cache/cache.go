// Package cache stores compiled stylesheets in a bolt database so a
// stylesheet is compiled once per version instead of once per process.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/midbel/loom/xslt"
)

var bucket = []byte("stylesheets")

type Cache struct {
	db *bolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns the compiled stylesheet stored under key. A missing or
// unreadable entry is a plain miss; the caller recompiles and stores.
func (c *Cache) Load(key string, cfg *xslt.Configuration) (*xslt.Executable, bool) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			raw = bytes.Clone(v)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false
	}
	exec, err := xslt.Import(bytes.NewReader(raw), cfg)
	if err != nil {
		c.evict(key)
		return nil, false
	}
	return exec, true
}

func (c *Cache) Store(key string, exec *xslt.Executable) error {
	var buf bytes.Buffer
	if err := exec.Export(&buf); err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), buf.Bytes())
	})
}

func (c *Cache) evict(key string) {
	c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// Key fingerprints a stylesheet file: its content hash keyed by path.
// Editing the file yields a new key, so stale entries are simply never
// read again.
func Key(file string) (string, error) {
	r, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer r.Close()
	sum := sha256.New()
	if _, err := io.Copy(sum, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", file, hex.EncodeToString(sum.Sum(nil))), nil
}
