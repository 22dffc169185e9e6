/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mount

import "testing"

func TestParseSpecString(t *testing.T) {
	s, err := ParseSpecString("mountpoint=/r,pool=p1,allow_put=1,allow_delete=1,timeout=30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Prefix != "/r" || s.Pool != "p1" || s.TimeoutSec != 30 {
		t.Fatalf("unexpected spec: %+v", s)
	}
	p := s.Perm()
	if !p.Has(PermPut) || !p.Has(PermDelete) {
		t.Fatalf("expected put+delete permission, got %v", p)
	}
	if p.Has(PermMkcol) || p.Has(PermPropfind) {
		t.Fatalf("unexpected permission bits set: %v", p)
	}
}

func TestParseSpecStringRequiresMountpointAndPool(t *testing.T) {
	if _, err := ParseSpecString("pool=p1"); err == nil {
		t.Fatal("expected error for missing mountpoint")
	}
	if _, err := ParseSpecString("mountpoint=/r"); err == nil {
		t.Fatal("expected error for missing pool")
	}
}

func TestParseSpecStringRejectsUnknownKey(t *testing.T) {
	if _, err := ParseSpecString("mountpoint=/r,pool=p1,bogus=1"); err == nil {
		t.Fatal("expected error for unrecognized key")
	}
}

func TestParseSpecStringRejectsBadTimeout(t *testing.T) {
	if _, err := ParseSpecString("mountpoint=/r,pool=p1,timeout=notanumber"); err == nil {
		t.Fatal("expected error for non-numeric timeout")
	}
}

func TestFilenameStripsPrefix(t *testing.T) {
	m := &Mount{Prefix: "/r"}
	if got := Filename(m, "/r/foo/bar"); got != "/foo/bar" {
		t.Fatalf("got %q", got)
	}
}

func TestFilenamePreservesPathWhenPrefixAbsent(t *testing.T) {
	m := &Mount{Prefix: "/r"}
	if got := Filename(m, "/other/path"); got != "/other/path" {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryMatchPrefersLongestPrefix(t *testing.T) {
	reg := &Registry{
		mounts: []*Mount{
			{Prefix: "/r"},
			{Prefix: "/r/sub"},
		},
		defaultPrefix: "/r",
	}
	m, ok := reg.Match("/r/sub/file")
	if !ok || m.Prefix != "/r/sub" {
		t.Fatalf("expected longest-prefix match, got %+v ok=%v", m, ok)
	}
}

func TestRegistryMatchFallsBackToDefault(t *testing.T) {
	reg := &Registry{
		mounts:        []*Mount{{Prefix: "/r"}},
		defaultPrefix: "/r",
	}
	m, ok := reg.Match("/unrelated")
	if !ok || m.Prefix != "/r" {
		t.Fatalf("expected fallback to default mount, got %+v ok=%v", m, ok)
	}
}
