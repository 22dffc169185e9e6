// Package hk runs named cleanup callbacks on their own periodic
// schedule, each re-registering its own next interval on return so a
// callback can back off (or speed up) depending on what it finds.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/NVIDIA/radosdav/cmn/nlog"
)

// CleanupFunc runs one housekeeping pass and returns the delay before it
// should run again. Returning a non-positive duration unregisters it.
type CleanupFunc func() time.Duration

type request struct {
	name string
	f    CleanupFunc
	due  time.Time
}

type requestHeap []*request

func (h requestHeap) Len() int            { return len(h) }
func (h requestHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)         { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}

// Housekeeper runs every registered CleanupFunc on its own schedule from
// a single goroutine, woken by a timer set to the earliest due request.
type Housekeeper struct {
	mu      sync.Mutex
	reqs    requestHeap
	wake    chan struct{}
	started chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// DefaultHK is the process-wide housekeeper; cmd/radosdav registers its
// jobs against it and starts it with a single `go DefaultHK.Run()`.
var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		wake:    make(chan struct{}, 1),
		started: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// Reg schedules f to run once after delay, and again after whatever
// delay it returns each time, until it returns <= 0.
func (hk *Housekeeper) Reg(name string, f CleanupFunc, delay time.Duration) {
	hk.mu.Lock()
	heap.Push(&hk.reqs, &request{name: name, f: f, due: time.Now().Add(delay)})
	hk.mu.Unlock()
	hk.poke()
}

func (hk *Housekeeper) poke() {
	select {
	case hk.wake <- struct{}{}:
	default:
	}
}

// Run is the housekeeper's main loop; it never returns until Stop is
// called, so callers invoke it as `go hk.Run()`.
func (hk *Housekeeper) Run() {
	hk.once.Do(func() { close(hk.started) })
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		hk.mu.Lock()
		var wait time.Duration
		if len(hk.reqs) == 0 {
			wait = time.Hour
		} else if d := time.Until(hk.reqs[0].due); d > 0 {
			wait = d
		}
		hk.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-hk.stop:
			return
		case <-hk.wake:
			continue
		case <-timer.C:
			hk.runDue()
		}
	}
}

func (hk *Housekeeper) runDue() {
	now := time.Now()
	for {
		hk.mu.Lock()
		if len(hk.reqs) == 0 || hk.reqs[0].due.After(now) {
			hk.mu.Unlock()
			return
		}
		r := heap.Pop(&hk.reqs).(*request)
		hk.mu.Unlock()

		next := func() (d time.Duration) {
			defer func() {
				if p := recover(); p != nil {
					nlog.Errorf("hk: %s panicked: %v", r.name, p)
					d = 0
				}
			}()
			return r.f()
		}()
		if next > 0 {
			hk.mu.Lock()
			r.due = time.Now().Add(next)
			heap.Push(&hk.reqs, r)
			hk.mu.Unlock()
		}
	}
}

func (hk *Housekeeper) Stop() { close(hk.stop) }

// WaitStarted blocks until Run has begun its loop; tests use this to
// avoid racing the first Reg call against an un-started housekeeper.
func (hk *Housekeeper) WaitStarted() { <-hk.started }

func WaitStarted() { DefaultHK.WaitStarted() }

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }

// Len reports how many jobs are currently scheduled, used by callers'
// tests to assert that Reg actually registered something without
// reaching into the heap directly.
func (hk *Housekeeper) Len() int {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	return len(hk.reqs)
}
