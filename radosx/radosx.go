// Package radosx defines the narrow surface of the RADOS client library
// this gateway depends on ( "the RADOS client library itself
// — cluster handles, I/O contexts, AIO primitives" is an out-of-scope
// external collaborator). It is deliberately an interface package: a
// production build binds Conn/IOContext to a real librados client (e.g.
// via a cgo wrapper, which this module does not vendor), while
// `radosx/fake` provides the in-memory double the rest of this module's
// tests run against.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package radosx

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors a Conn/IOContext implementation returns; the gateway
// translates these into gwerr.Kind values rather than inspecting
// implementation-specific error types (which, for a real librados
// binding, would be raw errno values).
var (
	ErrNotFound = errors.New("radosx: object not found")
	ErrExists   = errors.New("radosx: already exists")
)

// ObjAttrs mirrors the two fields a stat primitive returns. It is the
// gateway's own minimal stand-in for the much larger
// `cmn.ObjectProps`/`cmn.ObjAttrs` this codebase's lineage uses for
// multi-backend (S3/Azure/GCS/HDFS) bucket metadata — a RADOS object
// behind a flat pool namespace carries only size and mtime, nothing else
// the dispatcher or PROPFIND responder needs.
type ObjAttrs struct {
	Size  int64
	Mtime time.Time
}

// Completion is the native AIO completion handle ( "current
// completion, ... owned until released by the awaiter"). Release must be
// called exactly once; calling it twice is a caller bug, not something
// this interface guards against (the real librados completion handle
// has the identical contract).
type Completion interface {
	// WaitForComplete blocks the issuing-side helper only in the
	// synchronous (non-async) code path; the async path never calls it.
	WaitForComplete()
	// ReturnValue reports the native result code: 0 on success, a
	// negative errno-like value on failure (the design step 4).
	ReturnValue() int
	Release()
}

// AioCallback is invoked by the simulated native layer when an issued
// AIO completes. It may run on any goroutine. The gateway's `bridge`
// package is the only code in this module allowed to treat a callback's
// completion-vs-abandonment race as meaningful; everyone else just gets
// a result.
type AioCallback func(c Completion)

// ListCursor yields object names in native order (the design `list`).
type ListCursor interface {
	Next() (name string, ok bool)
	Close()
}

// IOContext is the per-worker-thread handle opened against one pool
// ("io_contexts"). Every method either is itself synchronous
// (the Sync* family, used when async is disabled) or accepts a callback
// and returns the Completion the bridge will wait on.
type IOContext interface {
	Pool() string

	SyncStat(ctx context.Context, key string) (ObjAttrs, error)
	SyncRemove(ctx context.Context, key string) error
	SyncWriteFull(ctx context.Context, key string, offset int64, data []byte) error
	SyncRead(ctx context.Context, key string, buf []byte, offset int64) (int, error)

	AioStat(key string, attrsOut *ObjAttrs, cb AioCallback) (Completion, error)
	AioRemove(key string, cb AioCallback) (Completion, error)
	AioWriteFull(key string, offset int64, data []byte, cb AioCallback) (Completion, error)
	AioRead(key string, buf []byte, offset int64, nOut *int, cb AioCallback) (Completion, error)

	List() (ListCursor, error)

	// PoolCreate is only reachable via MKCOL ; it has no
	// async form in the source and none here either.
	PoolCreate(name string) error

	Close()
}

// Conn is one connected cluster handle, shared read-only across worker
// threads . One Conn backs exactly one mount.
type Conn interface {
	ReadConfigFile(path string) error
	ReadDefaultConfigFile() error
	SetConfigOption(name, value string) error
	Connect() error
	OpenIOContext(pool string) (IOContext, error)
	FSID() (string, error)
	Shutdown()
}
