// Package fetchcache remembers HTTP cache validators per feed URL, so feed
// adapters can issue conditional requests and skip re-parsing an unchanged
// upstream.
package fetchcache

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var Buckets = struct {
	Metadata   []byte
	Validators []byte
}{
	Metadata:   []byte("__metadata__"),
	Validators: []byte("validators"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// A Validator is what the origin handed us to validate a cached response
// against: entity tag and/or last modification date.
type Validator struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func (v Validator) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

type Cache struct {
	db *bbolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		metadata, err := tx.CreateBucketIfNotExists(Buckets.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Validators); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("fetch cache version %d is newer than supported %d", version, currentVersion)
		}
		versionBytes, err := json.Marshal(currentVersion)
		if err != nil {
			return err
		}
		return metadata.Put(MetadataKeys.Version, versionBytes)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the stored validator for a URL, if any.
func (c *Cache) Get(url string) (Validator, bool) {
	var v Validator
	var found bool
	_ = c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(Buckets.Validators).Get([]byte(url))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			// Corrupt entry; treat as a miss, it will be overwritten.
			return nil
		}
		found = true
		return nil
	})
	return v, found
}

// Put stores the validator for a URL, replacing any previous one. A zero
// validator deletes the entry.
func (c *Cache) Put(url string, v Validator) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Validators)
		if v.IsZero() {
			return bucket.Delete([]byte(url))
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(url), raw)
	})
}
