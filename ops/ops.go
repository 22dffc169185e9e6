// Package ops implements operation primitives ("C3"): stat,
// delete, put, read, list. Each either calls the synchronous radosx
// method directly (mount.Mount.Async == false) or issues one AIO
// through the bridge and awaits its completion — never both, and never
// more than one outstanding AIO per call, matching the design's
// "every async primitive completes its AIO before returning".
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"
	"io"

	"github.com/NVIDIA/radosdav/bridge"
	"github.com/NVIDIA/radosdav/gwerr"
	"github.com/NVIDIA/radosdav/mount"
	"github.com/NVIDIA/radosdav/radosx"
)

// PutChunkSize and ReadChunkSize are chunk-size ceilings.
const (
	PutChunkSize  = 32 * 1024
	ReadChunkSize = 8 * 1024
)

// Call bundles the per-request addressing primitives all
// take: "(slot_id, io_ctx, key, timeout, ...)".
type Call struct {
	Mount    *mount.Mount
	Slot     *bridge.Slot // nil iff Mount.Async is false
	WorkerID int
	Key      string
}

func (c Call) ioctx() radosx.IOContext { return c.Mount.IOContext(c.WorkerID) }

func (c Call) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Mount.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Mount.Timeout)
}

// Stat implements C3's stat, consulting the existence filter and stat
// cache before ever touching radosx .
func Stat(ctx context.Context, c Call) (radosx.ObjAttrs, error) {
	if c.Mount.Existence != nil && !c.Mount.Existence.MaybePresent(c.Key) {
		return radosx.ObjAttrs{}, gwerr.Wrap(gwerr.NotFound, "stat", c.Key, radosx.ErrNotFound)
	}
	if c.Mount.Cache != nil {
		if e, ok := c.Mount.Cache.Get(c.Mount.Prefix, c.Key); ok {
			return radosx.ObjAttrs{Size: e.Size, Mtime: e.Mtime}, nil
		}
	}

	attrs, err := stat(ctx, c)
	if err != nil {
		if err == radosx.ErrNotFound {
			return radosx.ObjAttrs{}, gwerr.Wrap(gwerr.NotFound, "stat", c.Key, err)
		}
		return radosx.ObjAttrs{}, gwerr.Wrap(gwerr.PermissionDenied, "stat", c.Key, err)
	}
	if c.Mount.Cache != nil {
		c.Mount.Cache.Put(c.Mount.Prefix, c.Key, attrs)
	}
	return attrs, nil
}

func stat(ctx context.Context, c Call) (radosx.ObjAttrs, error) {
	if !c.Mount.Async {
		return c.ioctx().SyncStat(ctx, c.Key)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var attrs radosx.ObjAttrs
	rv, err := c.Slot.Do(ctx, func(tok *bridge.Token) (bridge.Completion, error) {
		return c.ioctx().AioStat(c.Key, &attrs, func(comp radosx.Completion) {
			tok.Complete(bridge.Result{RV: comp.ReturnValue()})
		})
	})
	if err != nil {
		return radosx.ObjAttrs{}, err
	}
	if rv < 0 {
		return radosx.ObjAttrs{}, radosx.ErrNotFound
	}
	return attrs, nil
}

// Delete implements C3's delete: 0 (nil) only if the object existed and
// was removed, an error otherwise — the dispatcher (C4) maps any error
// here to 403 per the design, never 404.
func Delete(ctx context.Context, c Call) error {
	var err error
	if !c.Mount.Async {
		err = c.ioctx().SyncRemove(ctx, c.Key)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = c.withTimeout(ctx)
		defer cancel()
		rv, derr := c.Slot.Do(ctx, func(tok *bridge.Token) (bridge.Completion, error) {
			return c.ioctx().AioRemove(c.Key, func(comp radosx.Completion) {
				tok.Complete(bridge.Result{RV: comp.ReturnValue()})
			})
		})
		if derr != nil {
			err = derr
		} else if rv < 0 {
			err = radosx.ErrNotFound
		}
	}
	if err != nil {
		return gwerr.Wrap(gwerr.PermissionDenied, "delete", c.Key, err)
	}
	if c.Mount.Cache != nil {
		c.Mount.Cache.Invalidate(c.Mount.Prefix, c.Key)
	}
	if c.Mount.Existence != nil {
		c.Mount.Existence.Delete(c.Key)
	}
	return nil
}

// Put implements C3's put: reads the body in <=32KiB chunks and issues
// one write_full per chunk at increasing offsets, stopping on body
// exhaustion. The dispatcher (not this function) is responsible for
// deleting a pre-existing object first; source behavior is preserved
// here rather than having Put itself overwrite in place.
func Put(ctx context.Context, c Call, body io.Reader) error {
	buf := make([]byte, PutChunkSize)
	var offset int64
	for {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if err := writeFull(ctx, c, offset, buf[:n]); err != nil {
				return gwerr.Wrap(gwerr.Internal, "put", c.Key, err)
			}
			offset += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return gwerr.Wrap(gwerr.Internal, "put", c.Key, rerr)
		}
	}
	if c.Mount.Cache != nil {
		c.Mount.Cache.Invalidate(c.Mount.Prefix, c.Key)
	}
	if c.Mount.Existence != nil {
		c.Mount.Existence.Insert(c.Key)
	}
	return nil
}

func writeFull(ctx context.Context, c Call, offset int64, data []byte) error {
	if !c.Mount.Async {
		return c.ioctx().SyncWriteFull(ctx, c.Key, offset, data)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	rv, err := c.Slot.Do(ctx, func(tok *bridge.Token) (bridge.Completion, error) {
		return c.ioctx().AioWriteFull(c.Key, offset, data, func(comp radosx.Completion) {
			tok.Complete(bridge.Result{RV: comp.ReturnValue()})
		})
	})
	if err != nil {
		return err
	}
	if rv < 0 {
		return io.ErrShortWrite
	}
	return nil
}

// Read implements C3's read: reads up to size bytes in <=8KiB chunks,
// writing each chunk to w immediately (streaming). Success iff every
// byte up to size was read and written; any error, including a short
// write to w, aborts the loop (Transient row: "response
// truncated, no status change" — the caller has likely already sent a
// 200 by the time this returns an error mid-stream).
func Read(ctx context.Context, c Call, w io.Writer, size int64) error {
	buf := make([]byte, ReadChunkSize)
	var offset int64
	for offset < size {
		want := size - offset
		if want > ReadChunkSize {
			want = ReadChunkSize
		}
		n, err := readChunk(ctx, c, buf[:want], offset)
		if err != nil {
			return gwerr.Wrap(gwerr.Transient, "read", c.Key, err)
		}
		if n == 0 {
			break
		}
		if _, werr := w.Write(buf[:n]); werr != nil {
			return gwerr.Wrap(gwerr.Transient, "read", c.Key, werr)
		}
		offset += int64(n)
	}
	if offset != size {
		return gwerr.Wrap(gwerr.Transient, "read", c.Key, io.ErrUnexpectedEOF)
	}
	return nil
}

func readChunk(ctx context.Context, c Call, buf []byte, offset int64) (int, error) {
	if !c.Mount.Async {
		return c.ioctx().SyncRead(ctx, c.Key, buf, offset)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var n int
	rv, err := c.Slot.Do(ctx, func(tok *bridge.Token) (bridge.Completion, error) {
		return c.ioctx().AioRead(c.Key, buf, offset, &n, func(comp radosx.Completion) {
			tok.Complete(bridge.Result{RV: comp.ReturnValue()})
		})
	})
	if err != nil {
		return 0, err
	}
	if rv < 0 {
		return 0, io.ErrClosedPipe
	}
	return n, nil
}

// List implements C3's list: opens a cursor over the pool's objects in
// native order. There is no async form; a cursor open is cheap and the
// caller (PROPFIND, C5) drives one stat per yielded name itself.
func List(c Call) (radosx.ListCursor, error) {
	cur, err := c.ioctx().List()
	if err != nil {
		return nil, gwerr.Wrap(gwerr.Internal, "list", "", err)
	}
	return cur, nil
}

// Mkcol implements MKCOL's pool_create call. Like List, it has no async
// form in the source.
func Mkcol(c Call, name string) error {
	err := c.ioctx().PoolCreate(name)
	if err == nil {
		return nil
	}
	if err == radosx.ErrExists {
		return gwerr.Wrap(gwerr.Conflict, "mkcol", name, err)
	}
	return gwerr.Wrap(gwerr.Internal, "mkcol", name, err)
}
