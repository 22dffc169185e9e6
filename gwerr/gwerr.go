// Package gwerr implements the gateway's error taxonomy: a
// small set of kinds, each mapping to exactly one HTTP status, carried
// through the dispatcher as a single wrapped error type instead of an
// inline status-code-picking ladder at each call site. Grounded on
// `cmn/cos`'s ErrNotFound/Errs shape (a small zoo of typed sentinel
// errors plus a fatal-exit helper) adapted to this gateway's taxonomy.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gwerr

import (
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// Kind is one row of the gateway's error taxonomy table.
type Kind int

const (
	Internal Kind = iota
	NotFound
	PermissionDenied
	MethodNotAllowed
	Conflict
	Transient
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case PermissionDenied:
		return "permission-denied"
	case MethodNotAllowed:
		return "method-not-allowed"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is the wrapped form every operation primitive and dispatcher
// path returns instead of a bare error, so the dispatcher can derive an
// HTTP status without re-inspecting the underlying cause.
type Error struct {
	Kind Kind
	Op   string // e.g. "stat", "put", "mkcol"
	Key  string // object key, empty for mount-level errors
	err  error
}

func New(kind Kind, op, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, err: cause}
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Key, e.Kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Cause() error { return errors.Cause(e.err) }

// Wrap attaches op/key context to cause and tags it with kind, matching
// the constructor shape of cos.NewErrNotFound et al.
func Wrap(kind Kind, op, key string, cause error) *Error {
	return New(kind, op, key, errors.WithStack(cause))
}

// HTTPStatus is the single place the taxonomy table is
// translated into a response code; the dispatcher never inlines a
// kind-to-status switch of its own.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ge *Error
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError
	}
	switch ge.Kind {
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case Conflict:
		return http.StatusMethodNotAllowed // MKCOL on an already-existing pool
	case Transient:
		return 0 // no status change; response already in flight
	default:
		return http.StatusInternalServerError
	}
}

func Is(err error, kind Kind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == kind
}

// Exitf terminates the process for a config-class failure that leaves
// the gateway unable to serve any request, used by mount setup and by
// cmd/radosdav's other startup steps.
func Exitf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, "FATAL ERROR: "+fmt.Sprintf(format, args...))
	os.Exit(1)
}
