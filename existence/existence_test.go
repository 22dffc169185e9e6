/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package existence

import "testing"

func TestInsertThenMaybePresent(t *testing.T) {
	f := New()
	if f.MaybePresent("foo") {
		t.Fatal("expected definitely-absent before insert")
	}
	f.Insert("foo")
	if !f.MaybePresent("foo") {
		t.Fatal("expected maybe-present after insert")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	f := New()
	f.Insert("foo")
	f.Delete("foo")
	if f.MaybePresent("foo") {
		t.Fatal("expected definitely-absent after delete")
	}
}

func TestRebuildReplacesContents(t *testing.T) {
	f := New()
	f.Insert("stale")
	f.Rebuild([]string{"fresh"})
	if f.MaybePresent("stale") {
		t.Fatal("expected stale key to be gone after rebuild")
	}
	if !f.MaybePresent("fresh") {
		t.Fatal("expected fresh key to be present after rebuild")
	}
}
