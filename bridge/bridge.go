// Package bridge implements the asynchronous completion bridge: it
// turns a radosx AIO callback — invoked on whatever
// goroutine the simulated native layer chooses — into a value received
// by the one goroutine awaiting it, with late callbacks from abandoned
// operations provably discarded.
//
// The source this gateway is modeled on used a pipe, a mutex, and a
// monotonic `rid` counter because a C callback has no safe way to wake a
// blocked thread other than making a file descriptor readable. Go has no
// such constraint — a callback is an ordinary closure — so in this
// package an atomically-advanced generation number gates delivery into
// a channel created fresh for each issuance (see Slot.Do), which is
// simpler than a single-shot CAS on a shared completion value and
// sidesteps the pipe
// redesign's "late write lands in the wrong generation's channel" hazard
// entirely, since an abandoned issuance's channel is never reused.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package bridge

import (
	"context"
	"sync/atomic"

	"github.com/teris-io/shortid"

	"github.com/NVIDIA/radosdav/cmn/nlog"
)

// traceABC mirrors cos.uuidABC: a shortid alphabet, chosen only to avoid
// the default alphabet's URL-unfriendly characters in log lines.
const traceABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func init() {
	// fixed seed: trace ids only need to be locally distinct for log
	// correlation, not globally unique or unguessable.
	s, err := shortid.New(1, traceABC, 42)
	if err != nil {
		panic(err)
	}
	sid = s
}

// Result is what an issued AIO eventually produces: the native return
// code and/or an error from the issuing or awaiting side.
type Result struct {
	RV  int
	Err error
}

// Slot is "async slot": one per async core, process-lifetime,
// reused across every request that lands on it. The dispatcher (C4)
// guarantees at most one Do() call in flight per Slot at a time.
type Slot struct {
	ID  int
	gen atomic.Uint64
}

func NewSlot(id int) *Slot { return &Slot{ID: id} }

// Token is handed to the code issuing one AIO; it must call Complete
// exactly once when (if) the native completion fires. Token is the
// non-owning back-reference the design describes for the "pending callback
// record" — it carries no allocation of its own beyond the struct itself
// and the channel, both freed by the garbage collector once both sides
// are done with them, as is idiomatic in Go (no manual free() call is
// needed the way "pending callback record" lifecycle required
// in the source language).
type Token struct {
	slot    *Slot
	gen     uint64
	ch      chan Result
	traceID string
}

// TraceID identifies this issuance in log lines, independent of the
// generation counter used for correctness (the generation number alone
// is not a pleasant thing to grep logs for).
func (t *Token) TraceID() string { return t.traceID }

// Complete delivers res if this token's generation is still current,
// i.e. nobody has abandoned or superseded it. It may be called from any
// goroutine, any number of times — only the first call within the
// correct generation has any effect — mirroring the design's
// on_complete callback, which is also written to tolerate being the
// sole invocation of a once-only delivery.
func (t *Token) Complete(res Result) {
	if t.slot.gen.Load() != t.gen {
		lateCallbacks.Add(1)
		nlog.Warningf("bridge: slot %d trace %s woke up too late (gen advanced)", t.slot.ID, t.traceID)
		return
	}
	select {
	case t.ch <- res:
	default:
		// a result was already delivered for this generation; this can
		// only happen if the radosx implementation invokes the callback
		// more than once, which would be its bug, not ours.
	}
}

func (s *Slot) arm() *Token {
	g := s.gen.Add(1)
	return &Token{slot: s, gen: g, ch: make(chan Result, 1), traceID: sid.MustGenerate()}
}

// abandon advances the generation past this token's, so any callback
// that fires afterwards ("late callback") observes a stale
// generation and drops itself instead of delivering into a channel
// nobody is reading from anymore. CompareAndSwap (not a plain Add)
// avoids clobbering a newer Arm() that may have already run — e.g. when
// Do's ctx.Done() and a legitimate, on-time Complete race each other.
func (t *Token) abandon() {
	t.slot.gen.CompareAndSwap(t.gen, t.gen+1)
}

// Completion is the minimal shape bridge needs from a radosx.Completion
// without importing the radosx package (which would be a needless
// dependency edge for a package whose whole job is generic completion
// plumbing, not RADOS specifics).
type Completion interface {
	Release()
}

// Do arms the slot, calls issue to start the native AIO, and waits for
// either the resulting completion or ctx's deadline — the single
// suspension point the design calls out ("exactly one per primitive
// issuance"). issue must arrange for tok.Complete to be invoked exactly
// once if it returns a non-nil completion and a nil error.
func (s *Slot) Do(ctx context.Context, issue func(tok *Token) (Completion, error)) (int, error) {
	awaits.Add(1)
	tok := s.arm()
	comp, err := issue(tok)
	if err != nil {
		// the design await step 1: issuance itself failed, the callback
		// will never fire; release nothing (there is nothing to
		// release) and advance past this generation defensively.
		tok.abandon()
		return -1, err
	}
	select {
	case res := <-tok.ch:
		if comp != nil {
			comp.Release()
		}
		return res.RV, res.Err
	case <-ctx.Done():
		timeouts.Add(1)
		tok.abandon()
		if comp != nil {
			comp.Release()
		}
		// The callback may still fire after this point; Complete's
		// generation check makes that delivery a no-op (the design's
		// documented, now structurally-enforced, "tolerable" hazard).
		return -1, ctx.Err()
	}
}

var (
	lateCallbacks atomic.Uint64
	timeouts      atomic.Uint64
	awaits        atomic.Uint64
)

// LateCallbacks, Timeouts, and Awaits back gwstats' Prometheus
// collector (kept as free functions here, rather than pulling
// prometheus into this package, so bridge has no third-party
// dependency beyond the trace-id generator).
func LateCallbacks() uint64 { return lateCallbacks.Load() }
func Timeouts() uint64      { return timeouts.Load() }
func Awaits() uint64        { return awaits.Load() }
