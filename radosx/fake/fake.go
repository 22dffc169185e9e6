// Package fake is an in-memory double for radosx, used by the rest of
// this module's tests (literal scenarios and invariants) so
// they exercise the real bridge/ops/dav code without a Ceph cluster.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NVIDIA/radosdav/radosx"
)

// Conn is a fake cluster handle holding one pool set per opened pool.
type Conn struct {
	mu      sync.Mutex
	pools   map[string]*pool
	fsid    string
	connect bool

	// AsyncDelay, when non-zero, is how long an Aio* call waits (on its
	// own goroutine) before invoking the callback — set this in tests
	// that need to race an Await timeout against a late callback.
	AsyncDelay time.Duration
}

func NewConn() *Conn {
	return &Conn{pools: make(map[string]*pool), fsid: "fake-fsid-0000"}
}

func (c *Conn) ReadConfigFile(string) error          { return nil }
func (c *Conn) ReadDefaultConfigFile() error         { return nil }
func (c *Conn) SetConfigOption(string, string) error { return nil }
func (c *Conn) Connect() error                       { c.connect = true; return nil }
func (c *Conn) FSID() (string, error) {
	if !c.connect {
		return "", fmt.Errorf("not connected")
	}
	return c.fsid, nil
}
func (c *Conn) Shutdown() {}

func (c *Conn) OpenIOContext(poolName string) (radosx.IOContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[poolName]
	if !ok {
		p = &pool{name: poolName, objs: make(map[string]*object)}
		c.pools[poolName] = p
	}
	return &ioctx{conn: c, pool: p}, nil
}

type object struct {
	data  []byte
	mtime time.Time
}

type pool struct {
	mu      sync.RWMutex
	name    string
	objs    map[string]*object
	created bool
}

type ioctx struct {
	conn *Conn
	pool *pool
}

func (x *ioctx) Pool() string { return x.pool.name }

func (x *ioctx) Close() {}

func (x *ioctx) PoolCreate(name string) error {
	x.pool.mu.Lock()
	defer x.pool.mu.Unlock()
	if x.pool.created {
		return radosx.ErrExists
	}
	x.pool.created = true
	return nil
}

func (x *ioctx) SyncStat(_ context.Context, key string) (radosx.ObjAttrs, error) {
	x.pool.mu.RLock()
	defer x.pool.mu.RUnlock()
	o, ok := x.pool.objs[key]
	if !ok {
		return radosx.ObjAttrs{}, radosx.ErrNotFound
	}
	return radosx.ObjAttrs{Size: int64(len(o.data)), Mtime: o.mtime}, nil
}

func (x *ioctx) SyncRemove(_ context.Context, key string) error {
	x.pool.mu.Lock()
	defer x.pool.mu.Unlock()
	if _, ok := x.pool.objs[key]; !ok {
		return radosx.ErrNotFound
	}
	delete(x.pool.objs, key)
	return nil
}

func (x *ioctx) SyncWriteFull(_ context.Context, key string, offset int64, data []byte) error {
	x.pool.mu.Lock()
	defer x.pool.mu.Unlock()
	o, ok := x.pool.objs[key]
	if !ok {
		o = &object{}
		x.pool.objs[key] = o
	}
	need := int(offset) + len(data)
	if need > len(o.data) {
		grown := make([]byte, need)
		copy(grown, o.data)
		o.data = grown
	}
	copy(o.data[offset:], data)
	o.mtime = time.Now()
	return nil
}

func (x *ioctx) SyncRead(_ context.Context, key string, buf []byte, offset int64) (int, error) {
	x.pool.mu.RLock()
	defer x.pool.mu.RUnlock()
	o, ok := x.pool.objs[key]
	if !ok {
		return 0, radosx.ErrNotFound
	}
	if offset >= int64(len(o.data)) {
		return 0, nil
	}
	n := copy(buf, o.data[offset:])
	return n, nil
}

func (x *ioctx) List() (radosx.ListCursor, error) {
	x.pool.mu.RLock()
	names := make([]string, 0, len(x.pool.objs))
	for k := range x.pool.objs {
		names = append(names, k)
	}
	x.pool.mu.RUnlock()
	sort.Strings(names)
	return &listCursor{names: names}, nil
}

type listCursor struct {
	names []string
	idx   int
}

func (l *listCursor) Next() (string, bool) {
	if l.idx >= len(l.names) {
		return "", false
	}
	n := l.names[l.idx]
	l.idx++
	return n, true
}
func (l *listCursor) Close() {}

// completion is a fake Completion: it stores the return code and a
// ready channel, closed once the operation has run; WaitForComplete
// blocks on that channel.
type completion struct {
	rc    int
	ready chan struct{}
}

func newCompletion() *completion { return &completion{ready: make(chan struct{})} }

func (c *completion) WaitForComplete() { <-c.ready }
func (c *completion) ReturnValue() int { return c.rc }
func (c *completion) Release()         {}

func (x *ioctx) schedule(fn func() int, cb radosx.AioCallback) (radosx.Completion, error) {
	c := newCompletion()
	delay := x.conn.AsyncDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		c.rc = fn()
		close(c.ready)
		if cb != nil {
			cb(c)
		}
	}()
	return c, nil
}

func (x *ioctx) AioStat(key string, attrsOut *radosx.ObjAttrs, cb radosx.AioCallback) (radosx.Completion, error) {
	return x.schedule(func() int {
		a, err := x.SyncStat(context.Background(), key)
		if err != nil {
			return -1
		}
		*attrsOut = a
		return 0
	}, cb)
}

func (x *ioctx) AioRemove(key string, cb radosx.AioCallback) (radosx.Completion, error) {
	return x.schedule(func() int {
		if err := x.SyncRemove(context.Background(), key); err != nil {
			return -1
		}
		return 0
	}, cb)
}

func (x *ioctx) AioWriteFull(key string, offset int64, data []byte, cb radosx.AioCallback) (radosx.Completion, error) {
	return x.schedule(func() int {
		if err := x.SyncWriteFull(context.Background(), key, offset, data); err != nil {
			return -1
		}
		return 0
	}, cb)
}

func (x *ioctx) AioRead(key string, buf []byte, offset int64, nOut *int, cb radosx.AioCallback) (radosx.Completion, error) {
	return x.schedule(func() int {
		n, err := x.SyncRead(context.Background(), key, buf, offset)
		if err != nil {
			return -1
		}
		*nOut = n
		return 0
	}, cb)
}
