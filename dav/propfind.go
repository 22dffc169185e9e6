package dav

import (
	"bytes"
	"context"
	"encoding/xml"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/NVIDIA/radosdav/mount"
	"github.com/NVIDIA/radosdav/ops"
)

const multistatusOpen = `<?xml version="1.0" encoding="utf-8"?><D:multistatus xmlns:D="DAV:">`
const multistatusClose = `</D:multistatus>`

func writeMultistatusOpen(buf *bytes.Buffer)  { buf.WriteString(multistatusOpen) }
func writeMultistatusClose(buf *bytes.Buffer) { buf.WriteString(multistatusClose) }

// writeResponseEntry appends one WebDAV <D:response> element. size<0
// suppresses <getcontentlength>/<getlastmodified> (used for the depth-0
// "/" placeholder, which carries no size or mtime).
func writeResponseEntry(buf *bytes.Buffer, href string, size int64, mtime time.Time, mimeType string) {
	buf.WriteString("<D:response><D:href>")
	xml.EscapeText(buf, []byte(href))
	buf.WriteString("</D:href><D:propstat><D:prop>")
	if size >= 0 {
		buf.WriteString("<D:getcontentlength>")
		buf.WriteString(strconv.FormatInt(size, 10))
		buf.WriteString("</D:getcontentlength><D:getlastmodified>")
		xml.EscapeText(buf, []byte(mtime.UTC().Format(http.TimeFormat)))
		buf.WriteString("</D:getlastmodified>")
		if mimeType != "" {
			buf.WriteString("<D:getcontenttype>")
			xml.EscapeText(buf, []byte(mimeType))
			buf.WriteString("</D:getcontenttype>")
		}
	}
	buf.WriteString("</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>")
}

func mimeFor(key string) string {
	return mime.TypeByExtension(path.Ext(key))
}

// propfindOne implements the single-resource mode: stat the key and,
// on success, emit a one-entry multistatus body; a failed stat maps to
// the same 404/403 split GET and HEAD use.
func (h *Handler) propfindOne(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call) int {
	if !m.Perms.Has(mount.PermPropfind) {
		return http.StatusMethodNotAllowed
	}
	attrs, err := ops.Stat(ctx, call)
	if err != nil {
		return httpStatus(err)
	}
	var buf bytes.Buffer
	writeMultistatusOpen(&buf)
	writeResponseEntry(&buf, "/"+call.Key, attrs.Size, attrs.Mtime, mimeFor(call.Key))
	writeMultistatusClose(&buf)
	ctx.Response.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	ctx.SetBody(buf.Bytes())
	return http.StatusMultiStatus
}

// propfindRoot implements the root-enumeration mode. Concurrent root
// PROPFINDs against the same mount are coalesced through the mount's
// singleflight group: only one goroutine actually walks the pool's list
// cursor and stats every entry; every caller that joins mid-flight
// receives the same resulting buffer. This trades the source's
// per-connection incremental flush for a single shared enumeration —
// every client still gets the complete, correct multistatus body, just
// not written to their own socket one entry at a time.
func (h *Handler) propfindRoot(ctx *fasthttp.RequestCtx, m *mount.Mount, call ops.Call) int {
	if !m.Perms.Has(mount.PermPropfind) {
		return http.StatusMethodNotAllowed
	}
	ctx.Response.Header.Set("Content-Type", `text/xml; charset="utf-8"`)

	if depth := string(ctx.Request.Header.Peek("Depth")); depth == "0" {
		var buf bytes.Buffer
		writeMultistatusOpen(&buf)
		writeResponseEntry(&buf, "/", -1, time.Time{}, "")
		writeMultistatusClose(&buf)
		ctx.SetBody(buf.Bytes())
		return http.StatusMultiStatus
	}

	reqCtx := context.Background()
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, m.Timeout)
		defer cancel()
	}
	v, _, _ := m.SingleflightGroup().Do("propfind-root", func() (any, error) {
		return enumerateRoot(reqCtx, call)
	})
	// Enumeration failing partway still has a partial-but-valid buffer in
	// v (closed with the multistatus terminator); per the source, content
	// already "in flight" can't change the response status.
	if b, ok := v.([]byte); ok {
		ctx.SetBody(b)
	}
	return http.StatusMultiStatus
}

func enumerateRoot(ctx context.Context, call ops.Call) ([]byte, error) {
	cur, err := ops.List(call)
	if err != nil {
		var buf bytes.Buffer
		writeMultistatusOpen(&buf)
		writeMultistatusClose(&buf)
		return buf.Bytes(), err
	}
	defer cur.Close()

	var buf bytes.Buffer
	writeMultistatusOpen(&buf)
	for {
		name, ok := cur.Next()
		if !ok {
			break
		}
		entry := call
		entry.Key = name
		attrs, serr := ops.Stat(ctx, entry)
		if serr != nil {
			writeMultistatusClose(&buf)
			return buf.Bytes(), serr
		}
		writeResponseEntry(&buf, "/"+name, attrs.Size, attrs.Mtime, mimeFor(name))
	}
	writeMultistatusClose(&buf)
	return buf.Bytes(), nil
}
