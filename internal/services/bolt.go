package services

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// BoltDB is a small key-value store backed by a BoltDB file. It keeps the persisted user
// preferences in a single bucket.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (or creates with 0600 permissions) the database at path and makes sure the
// settings bucket exists.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create settings bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Get returns the value stored under key. The boolean is false when the key was never written.
func (b BoltDB) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(settingsBucket)
		if bk == nil {
			return nil
		}
		v := bk.Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction.
		value = string(v)
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, found, nil
}

// Set stores value under key, overwriting any previous value.
func (b BoltDB) Set(_ context.Context, key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(settingsBucket)
		if bk == nil {
			return fmt.Errorf("bucket %s not found", settingsBucket)
		}
		return bk.Put([]byte(key), []byte(value))
	})
}

// All returns every stored key and value.
func (b BoltDB) All(context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(settingsBucket)
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
