// Package statcache implements a short-TTL stat cache: a read-through
// cache in front of the stat primitive, backed by an in-memory buntdb
// database so expiry is native
// to the store (buntdb's SetOptions.Expires) instead of a hand-rolled
// sweep goroutine. Grounded on compositedav's StatCache idea (an
// optional cache the dispatcher invalidates on any non-GET method) and
// on cmn/cos's UUID/fingerprint helpers for the value encoding.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package statcache

import (
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/tidwall/buntdb"

	"github.com/NVIDIA/radosdav/radosx"
)

// Entry is the design's StatCacheEntry: everything PROPFIND/GET need from a
// stat, plus an xxhash fingerprint of size and mtime that is stored
// alongside but not read by anything in this module.
type Entry struct {
	Size        int64
	Mtime       time.Time
	Fingerprint uint64
}

// Cache wraps one in-memory buntdb database. A Cache with TTL<=0 is a
// valid no-op cache (Get always misses, Put and Invalidate are cheap
// no-ops) so callers don't need a separate "caching disabled" branch —
// this mirrors the idea that "-rados-statcache-ttl 0 disables the
// cache outright" flag semantics.
type Cache struct {
	db  *buntdb.DB
	ttl time.Duration
}

func New(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		return &Cache{ttl: 0}, nil
	}
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func key(mountPrefix, objKey string) string {
	var b strings.Builder
	b.WriteString(mountPrefix)
	b.WriteByte('\x00')
	b.WriteString(objKey)
	return b.String()
}

// Get returns a cached stat entry for (mountPrefix, objKey), if present
// and not expired. buntdb enforces expiry itself, so a returned ok==true
// is always a live entry.
func (c *Cache) Get(mountPrefix, objKey string) (Entry, bool) {
	if c.db == nil {
		return Entry{}, false
	}
	var e Entry
	var found bool
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key(mountPrefix, objKey))
		if err != nil {
			return nil // ErrNotFound or expired: miss, not an error to the caller
		}
		e, found = decode(v), true
		return nil
	})
	if err != nil {
		return Entry{}, false
	}
	return e, found
}

// Put stores attrs as a cache entry, fingerprinted with xxhash over
// its size and mtime.
func (c *Cache) Put(mountPrefix, objKey string, attrs radosx.ObjAttrs) {
	if c.db == nil {
		return
	}
	e := Entry{Size: attrs.Size, Mtime: attrs.Mtime, Fingerprint: fingerprint(attrs)}
	_ = c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(mountPrefix, objKey), encode(e), &buntdb.SetOptions{
			Expires: true,
			TTL:     c.ttl,
		})
		return err
	})
}

// Invalidate drops any cached entry for (mountPrefix, objKey); called by
// PUT and DELETE before they return .
func (c *Cache) Invalidate(mountPrefix, objKey string) {
	if c.db == nil {
		return
	}
	_ = c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(mountPrefix, objKey))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

func fingerprint(attrs radosx.ObjAttrs) uint64 {
	h := xxhash.New64()
	h.Write([]byte(strconv.FormatInt(attrs.Size, 10)))
	h.Write([]byte(strconv.FormatInt(attrs.Mtime.UnixNano(), 10)))
	return h.Sum64()
}

// encode/decode use a plain, order-fixed text format rather than a
// generic serializer: the value only ever has three fields and never
// crosses a process boundary (buntdb here is in-memory only), so a
// JSON/msgp round trip would be pure overhead.
func encode(e Entry) string {
	return strconv.FormatInt(e.Size, 10) + "," +
		strconv.FormatInt(e.Mtime.UnixNano(), 10) + "," +
		strconv.FormatUint(e.Fingerprint, 10)
}

func decode(s string) Entry {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return Entry{}
	}
	size, _ := strconv.ParseInt(parts[0], 10, 64)
	nsec, _ := strconv.ParseInt(parts[1], 10, 64)
	fp, _ := strconv.ParseUint(parts[2], 10, 64)
	return Entry{Size: size, Mtime: time.Unix(0, nsec), Fingerprint: fp}
}
