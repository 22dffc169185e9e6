// Package dav implements the WebDAV method dispatcher and PROPFIND
// responder on top of fasthttp: it resolves each request's mount,
// enforces that mount's permission flags before touching an I/O
// context, and maps every ops/gwerr result onto the narrow HTTP status
// vocabulary this gateway uses.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dav

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/NVIDIA/radosdav/bridge"
	"github.com/NVIDIA/radosdav/gwerr"
	"github.com/NVIDIA/radosdav/gwstats"
	"github.com/NVIDIA/radosdav/mount"
	"github.com/NVIDIA/radosdav/ops"
)

// maxPathLen bounds path_info the way the host runtime's PATH_MAX would.
const maxPathLen = 4096

// Handler dispatches every WebDAV request across the registered mounts.
// Async slots are drawn from a fixed-size free list sized
// workers*slotsPerWorker, mirroring the "at most one in-flight request
// per (worker, slot) pair" guarantee the source's host runtime gave for
// free; here the free list itself is the guarantee. A second, smaller
// free list of exactly `workers` lane numbers is drawn from separately:
// a Mount has only `workers` IOContexts (mount.Registry opens one per
// worker thread, see mount.Mount.IOContext), so the value handed to
// ops.Call.WorkerID must itself range over [0, workers), never over the
// larger slot-id space, or two concurrently checked-out slots that
// happen to share a worker-id modulo class would drive the same
// IOContext at once.
type Handler struct {
	Registry *mount.Registry
	slots    chan *bridge.Slot
	lanes    chan int
}

func NewHandler(reg *mount.Registry, workers, slotsPerWorker int) *Handler {
	if workers < 1 {
		workers = 1
	}
	n := workers * slotsPerWorker
	if n < 1 {
		n = 1
	}
	slots := make(chan *bridge.Slot, n)
	for i := 0; i < n; i++ {
		slots <- bridge.NewSlot(i)
	}
	lanes := make(chan int, workers)
	for i := 0; i < workers; i++ {
		lanes <- i
	}
	return &Handler{Registry: reg, slots: slots, lanes: lanes}
}

// ServeHTTP is a fasthttp.RequestHandler.
func (h *Handler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	status := h.dispatch(ctx)
	ctx.SetStatusCode(status)
	gwstats.RequestLatency.
		WithLabelValues(string(ctx.Method()), statusClass(status)).
		Observe(time.Since(start).Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func httpStatus(err error) int {
	if s := gwerr.HTTPStatus(err); s != 0 {
		return s
	}
	return http.StatusOK // Transient: no status change
}

// dispatch implements the method table unchanged: empty/oversized paths
// reject first, then mount resolution, then permission gating, then (if
// permitted) the actual I/O.
func (h *Handler) dispatch(ctx *fasthttp.RequestCtx) int {
	pathInfo := string(ctx.Path())
	if pathInfo == "" || len(pathInfo) > maxPathLen {
		return http.StatusForbidden
	}

	m, ok := h.Registry.Match(pathInfo)
	if !ok {
		return http.StatusNotFound
	}
	filename := mount.Filename(m, pathInfo)

	method := string(ctx.Method())

	// OPTIONS never stats and never needs a slot.
	if method == fasthttp.MethodOptions {
		return h.options(ctx, m)
	}

	var slot *bridge.Slot
	var workerID int
	if m.Async {
		select {
		case slot = <-h.slots:
			defer func() { h.slots <- slot }()
		default:
			return http.StatusInternalServerError
		}
		select {
		case workerID = <-h.lanes:
			defer func() { h.lanes <- workerID }()
		default:
			return http.StatusInternalServerError
		}
	}
	call := ops.Call{Mount: m, Slot: slot, WorkerID: workerID, Key: filename}

	switch {
	case method == "PROPFIND" && (pathInfo == "/" || filename == "" || filename == "/"):
		return h.propfindRoot(ctx, m, call)
	case method == "MKCOL":
		return h.mkcol(ctx, m, call)
	case method == fasthttp.MethodPut:
		return h.put(ctx, m, call)
	case method == fasthttp.MethodDelete:
		return h.delete(ctx, m, call)
	case method == "PROPFIND":
		return h.propfindOne(ctx, m, call)
	case method == fasthttp.MethodHead, method == fasthttp.MethodGet:
		return h.getOrHead(ctx, m, call, method == fasthttp.MethodGet)
	default:
		return http.StatusMethodNotAllowed
	}
}

func (h *Handler) options(ctx *fasthttp.RequestCtx, m *mount.Mount) int {
	allow := []string{"OPTIONS", "GET", "HEAD"}
	if m.Perms.Has(mount.PermPut) {
		allow = append(allow, "PUT")
	}
	if m.Perms.Has(mount.PermDelete) {
		allow = append(allow, "DELETE")
	}
	if m.Perms.Has(mount.PermMkcol) {
		allow = append(allow, "MKCOL")
	}
	if m.Perms.Has(mount.PermPropfind) {
		allow = append(allow, "PROPFIND")
	}
	ctx.Response.Header.Set("Dav", "1")
	ctx.Response.Header.Set("Allow", strings.Join(allow, ", "))
	return http.StatusOK
}

func (h *Handler) mkcol(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call) int {
	if !m.Perms.Has(mount.PermMkcol) {
		return http.StatusMethodNotAllowed
	}
	if err := ops.Mkcol(call, call.Key); err != nil {
		return httpStatus(err)
	}
	return http.StatusCreated
}

// put stats the key first and deletes any pre-existing object before
// writing the new body, per the source's (preserved) PUT semantics.
func (h *Handler) put(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call) int {
	if !m.Perms.Has(mount.PermPut) {
		return http.StatusMethodNotAllowed
	}
	if _, err := ops.Stat(ctx, call); err == nil {
		if derr := ops.Delete(ctx, call); derr != nil {
			return http.StatusInternalServerError
		}
	} else if !gwerr.Is(err, gwerr.NotFound) {
		return http.StatusInternalServerError
	}
	if err := ops.Put(ctx, call, bytes.NewReader(ctx.PostBody())); err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusCreated
}

func (h *Handler) delete(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call) int {
	if !m.Perms.Has(mount.PermDelete) {
		return http.StatusMethodNotAllowed
	}
	if err := ops.Delete(ctx, call); err != nil {
		return http.StatusForbidden
	}
	return http.StatusOK
}

// getOrHead never checks a permission bit: GET and HEAD are always
// allowed, unlike every other method in the table.
func (h *Handler) getOrHead(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call, withBody bool) int {
	attrs, err := ops.Stat(ctx, call)
	if err != nil {
		return httpStatus(err)
	}
	if ims := ctx.Request.Header.Peek("If-Modified-Since"); len(ims) > 0 {
		// Last-Modified is only ever sent at one-second resolution, so
		// the comparison truncates to the same resolution the header
		// round-trips through.
		if t, perr := http.ParseTime(string(ims)); perr == nil && !attrs.Mtime.Truncate(time.Second).After(t) {
			return http.StatusNotModified
		}
	}
	if mt := mimeFor(call.Key); mt != "" {
		ctx.Response.Header.Set("Content-Type", mt)
	}
	ctx.Response.Header.Set("Last-Modified", attrs.Mtime.UTC().Format(http.TimeFormat))
	ctx.Response.Header.Set("Content-Length", strconv.FormatInt(attrs.Size, 10))
	if withBody {
		// A mid-stream read failure truncates the body; per the source,
		// content already in flight cannot change the response status.
		_ = ops.Read(ctx, call, ctx.Response.BodyWriter(), attrs.Size)
	}
	return http.StatusOK
}
