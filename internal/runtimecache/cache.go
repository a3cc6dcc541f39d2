// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package runtimecache is the small process-shared key-value store for
// boot identity: the heartbeat sequence counter and the boot timestamp.
// All worker processes of one deployment point at the same Badger
// directory, so they share one counter and one boot time.
//
// Entries are set forever (no TTL). The heartbeat emitter is the single
// writer; the data-access shipper reads BootTime concurrently.
package runtimecache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Typed slot keys.
const (
	keyAliveSeq = "alive:seq"
	keyBootTime = "alive:boot_time"
)

// Cache is a Badger-backed runtime KV store.
type Cache struct {
	db *badger.DB
}

// Open opens (or creates) the cache at path.
func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open runtime cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// OpenInMemory opens an ephemeral cache, for tests.
func OpenInMemory() (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory runtime cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// AliveSeq returns the heartbeat sequence counter. ok is false when the
// slot has never been written (fresh deployment or wiped cache).
func (c *Cache) AliveSeq() (int64, bool, error) {
	raw, ok, err := c.get(keyAliveSeq)
	if err != nil || !ok {
		return 0, false, err
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse alive seq %q: %w", raw, err)
	}
	return seq, true, nil
}

// SetAliveSeq stores the heartbeat sequence counter.
func (c *Cache) SetAliveSeq(seq int64) error {
	return c.set(keyAliveSeq, []byte(strconv.FormatInt(seq, 10)))
}

// BootTime returns the deployment boot timestamp. ok is false when the
// slot has never been written.
func (c *Cache) BootTime() (time.Time, bool, error) {
	raw, ok, err := c.get(keyBootTime)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse boot time %q: %w", raw, err)
	}
	return t, true, nil
}

// SetBootTime stores the deployment boot timestamp.
func (c *Cache) SetBootTime(t time.Time) error {
	return c.set(keyBootTime, []byte(t.Format(time.RFC3339Nano)))
}

// Ping verifies the store is usable, for readiness checks.
func (c *Cache) Ping() error {
	return c.db.View(func(*badger.Txn) error { return nil })
}

func (c *Cache) get(key string) ([]byte, bool, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache key %s: %w", key, err)
	}
	return out, true, nil
}

func (c *Cache) set(key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("write cache key %s: %w", key, err)
	}
	return nil
}
