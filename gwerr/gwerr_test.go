/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gwerr

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Internal, http.StatusInternalServerError},
		{NotFound, http.StatusNotFound},
		{PermissionDenied, http.StatusForbidden},
		{MethodNotAllowed, http.StatusMethodNotAllowed},
		{Conflict, http.StatusMethodNotAllowed},
		{Transient, 0},
	}
	for _, c := range cases {
		err := New(c.kind, "op", "key", errors.New("boom"))
		if got := HTTPStatus(err); got != c.want {
			t.Errorf("kind %v: got status %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestHTTPStatusNilIsOK(t *testing.T) {
	if got := HTTPStatus(nil); got != http.StatusOK {
		t.Fatalf("got %d, want 200", got)
	}
}

func TestHTTPStatusUnwrappedErrorIsInternal(t *testing.T) {
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", got)
	}
}

func TestWrapPreservesKindAndIsCheck(t *testing.T) {
	err := Wrap(NotFound, "stat", "foo", errors.New("no such key"))
	if !Is(err, NotFound) {
		t.Fatal("expected Is(err, NotFound) to be true")
	}
	if Is(err, PermissionDenied) {
		t.Fatal("expected Is(err, PermissionDenied) to be false")
	}
}

func TestErrorStringIncludesKeyWhenPresent(t *testing.T) {
	err := New(NotFound, "stat", "foo", errors.New("cause"))
	if got := err.Error(); !strings.Contains(got, "foo") {
		t.Fatalf("expected error string to include key %q, got %q", "foo", got)
	}
}

func TestErrorStringOmitsKeyWhenEmpty(t *testing.T) {
	withKey := New(NotFound, "stat", "foo", errors.New("cause")).Error()
	withoutKey := New(NotFound, "stat", "", errors.New("cause")).Error()
	if withKey == withoutKey {
		t.Fatal("expected the key-bearing and key-less error strings to differ")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := New(Internal, "op", "", cause)
	if !errors.Is(err.Unwrap(), cause) {
		t.Fatal("expected Unwrap to return the original cause")
	}
}
