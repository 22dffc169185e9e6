/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/NVIDIA/radosdav/bridge"
	"github.com/NVIDIA/radosdav/gwerr"
	"github.com/NVIDIA/radosdav/mount"
	"github.com/NVIDIA/radosdav/ops"
	"github.com/NVIDIA/radosdav/radosx/fake"
)

func newCall(t *testing.T, async bool, key string) (ops.Call, *fake.Conn) {
	t.Helper()
	conn := fake.NewConn()
	ioctx, err := conn.OpenIOContext("pool")
	if err != nil {
		t.Fatalf("OpenIOContext: %v", err)
	}
	m := mount.NewTestMount("/r", ioctx, async, mount.PermPut|mount.PermDelete|mount.PermMkcol|mount.PermPropfind)
	var slot *bridge.Slot
	if async {
		slot = bridge.NewSlot(0)
	}
	return ops.Call{Mount: m, Slot: slot, WorkerID: 0, Key: key}, conn
}

func TestPutThenGetRoundTripSync(t *testing.T)  { testPutThenGetRoundTrip(t, false) }
func TestPutThenGetRoundTripAsync(t *testing.T) { testPutThenGetRoundTrip(t, true) }

func testPutThenGetRoundTrip(t *testing.T, async bool) {
	call, _ := newCall(t, async, "foo")
	payload := bytes.Repeat([]byte("x"), ops.PutChunkSize*2+17) // spans multiple chunks

	if err := ops.Put(context.Background(), call, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	attrs, err := ops.Stat(context.Background(), call)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if attrs.Size != int64(len(payload)) {
		t.Fatalf("got size %d, want %d", attrs.Size, len(payload))
	}

	var buf bytes.Buffer
	if err := ops.Read(context.Background(), call, &buf, attrs.Size); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatal("round-tripped bytes do not match what was written")
	}
}

func TestDeleteThenStatIsNotFound(t *testing.T) {
	call, _ := newCall(t, false, "foo")
	if err := ops.Put(context.Background(), call, bytes.NewReader([]byte("hi"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ops.Delete(context.Background(), call); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ops.Stat(context.Background(), call); !gwerr.Is(err, gwerr.NotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestDeleteOfMissingKeyIsPermissionDenied(t *testing.T) {
	call, _ := newCall(t, false, "nope")
	err := ops.Delete(context.Background(), call)
	if !gwerr.Is(err, gwerr.PermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestSecondPutOverwritesFirst(t *testing.T) {
	call, _ := newCall(t, false, "foo")
	if err := ops.Put(context.Background(), call, bytes.NewReader([]byte("aaaa"))); err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	if err := ops.Put(context.Background(), call, bytes.NewReader([]byte("b"))); err != nil {
		t.Fatalf("Put 2: %v", err)
	}
	attrs, err := ops.Stat(context.Background(), call)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	var buf bytes.Buffer
	if err := ops.Read(context.Background(), call, &buf, attrs.Size); err != nil {
		t.Fatalf("Read: %v", err)
	}
	// the fake store's write_full grows but never truncates, matching
	// the sparse-overwrite semantics of a real write_full at offset 0
	if buf.String()[:1] != "b" {
		t.Fatalf("expected overwritten first byte 'b', got %q", buf.String())
	}
}

func TestMkcolThenMkcolAgainIsConflict(t *testing.T) {
	call, _ := newCall(t, false, "")
	if err := ops.Mkcol(call, "newpool"); err != nil {
		t.Fatalf("first Mkcol: %v", err)
	}
	err := ops.Mkcol(call, "newpool")
	if !gwerr.Is(err, gwerr.Conflict) {
		t.Fatalf("expected Conflict on second Mkcol, got %v", err)
	}
}

func TestListReturnsPutKeys(t *testing.T) {
	call, _ := newCall(t, false, "")
	for _, k := range []string{"a", "b", "c"} {
		c := call
		c.Key = k
		if err := ops.Put(context.Background(), c, bytes.NewReader([]byte("v"))); err != nil {
			t.Fatalf("Put %q: %v", k, err)
		}
	}
	cur, err := ops.List(call)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defer cur.Close()
	var got []string
	for {
		name, ok := cur.Next()
		if !ok {
			break
		}
		got = append(got, name)
	}
	if len(got) != 3 {
		t.Fatalf("got %d names, want 3: %v", len(got), got)
	}
}

func TestStatOnNeverWrittenKeySkipsViaExistenceFilter(t *testing.T) {
	call, _ := newCall(t, false, "never-written")
	if _, err := ops.Stat(context.Background(), call); !gwerr.Is(err, gwerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
