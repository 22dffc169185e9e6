/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mount

import (
	"context"
	"testing"
	"time"

	"github.com/NVIDIA/radosdav/hk"
	"github.com/NVIDIA/radosdav/radosx"
	"github.com/NVIDIA/radosdav/radosx/fake"
)

func TestRegisterSeedsExistenceFilterFromPreExistingObjects(t *testing.T) {
	conn := fake.NewConn()
	ioctx, err := conn.OpenIOContext("p1")
	if err != nil {
		t.Fatalf("OpenIOContext: %v", err)
	}
	// simulate an object already present in the pool before this
	// process ever started, i.e. never PUT through this gateway
	if err := ioctx.SyncWriteFull(context.Background(), "pre-existing", 0, []byte("hi")); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	r := NewRegistry(1, time.Minute, func() radosx.Conn { return conn })
	spec := Spec{Prefix: "/r", Pool: "p1", AllowPropfind: "1"}
	if err := r.RegisterAll([]Spec{spec}, false); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	m, ok := r.Match("/r/pre-existing")
	if !ok {
		t.Fatal("expected mount to be registered")
	}
	if !m.Existence.MaybePresent("pre-existing") {
		t.Fatal("expected existence filter to be seeded with the pre-existing key at registration")
	}
}

func TestRegisterSchedulesExistenceRebuildJob(t *testing.T) {
	hk.TestInit()
	before := hk.DefaultHK.Len()

	conn := fake.NewConn()
	r := NewRegistry(1, time.Minute, func() radosx.Conn { return conn })
	spec := Spec{Prefix: "/r", Pool: "p1", AllowPropfind: "1"}
	if err := r.RegisterAll([]Spec{spec}, false); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if got := hk.DefaultHK.Len(); got != before+1 {
		t.Fatalf("expected one new hk job registered, got %d -> %d", before, got)
	}
}
