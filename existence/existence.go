// Package existence implements a per-mount probabilistic existence
// filter: a fast, sound-for-negatives check that lets stat skip an AIO
// round trip for a key that provably isn't in the pool. A cuckoo
// filter is used rather than a Bloom filter
// specifically because PUT/DELETE need to update the filter
// incrementally and cuckoo filters support deletion; a Bloom filter
// would force a full rebuild on every delete.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package existence

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Filter wraps one cuckoofilter.Filter with a mutex: the library's
// Filter is not documented as goroutine-safe, and a mount's filter is
// touched concurrently by every worker thread's PUT/DELETE plus the
// housekeeping rebuild.
type Filter struct {
	mu sync.RWMutex
	cf *cuckoo.Filter
}

// defaultCapacity is sized for a few hundred thousand keys per mount
// before the false-positive rate rises enough to matter; a mount with
// more objects than that still works correctly, it just falls through
// to a real stat more often.
const defaultCapacity = 1 << 20

func New() *Filter {
	return &Filter{cf: cuckoo.NewFilter(defaultCapacity)}
}

// MaybePresent reports whether key might be in the pool. false means
// "definitely not" (safe to skip the stat AIO entirely); true means
// "maybe" and the caller must still do a real stat or cache lookup.
func (f *Filter) MaybePresent(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cf.Lookup([]byte(key))
}

func (f *Filter) Insert(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cf.InsertUnique([]byte(key))
}

// Delete is best-effort: a cuckoo filter's Delete can fail to remove an
// entry it never actually held (e.g. after a Reset race), which only
// costs an extra real stat later — never a false "not present" answer.
func (f *Filter) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cf.Delete([]byte(key))
}

// Rebuild replaces the filter's contents wholesale from a fresh listing,
// run periodically by `hk` (housekeeping) so keys
// written by another process sharing the pool eventually become visible
// to the fast path too.
func (f *Filter) Rebuild(keys []string) {
	cf := cuckoo.NewFilter(defaultCapacity)
	for _, k := range keys {
		cf.InsertUnique([]byte(k))
	}
	f.mu.Lock()
	f.cf = cf
	f.mu.Unlock()
}
