/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package bridge_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/radosdav/bridge"
)

type fakeCompletion struct{ released bool }

func (c *fakeCompletion) Release() { c.released = true }

var _ = Describe("Slot", func() {
	It("delivers the result of a completion that fires before the deadline", func() {
		slot := bridge.NewSlot(0)
		comp := &fakeCompletion{}
		rv, err := slot.Do(context.Background(), func(tok *bridge.Token) (bridge.Completion, error) {
			go tok.Complete(bridge.Result{RV: 42})
			return comp, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(rv).To(Equal(42))
		Expect(comp.released).To(BeTrue())
	})

	It("returns the issue error without waiting when issue itself fails", func() {
		slot := bridge.NewSlot(0)
		rv, err := slot.Do(context.Background(), func(tok *bridge.Token) (bridge.Completion, error) {
			return nil, context.Canceled
		})
		Expect(err).To(Equal(context.Canceled))
		Expect(rv).To(Equal(-1))
	})

	It("times out and discards a callback that fires after abandonment", func() {
		slot := bridge.NewSlot(0)
		comp := &fakeCompletion{}
		before := bridge.LateCallbacks()

		lateFire := make(chan struct{})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		rv, err := slot.Do(ctx, func(tok *bridge.Token) (bridge.Completion, error) {
			go func() {
				time.Sleep(50 * time.Millisecond)
				tok.Complete(bridge.Result{RV: 7})
				close(lateFire)
			}()
			return comp, nil
		})
		Expect(err).To(HaveOccurred())
		Expect(rv).To(Equal(-1))

		Eventually(lateFire, time.Second).Should(BeClosed())
		Expect(bridge.LateCallbacks()).To(BeNumerically(">", before))
	})

	It("advances the generation on every Do call, even abandoned ones", func() {
		slot := bridge.NewSlot(0)
		var first *bridge.Token
		for i := 0; i < 5; i++ {
			comp := &fakeCompletion{}
			_, _ = slot.Do(context.Background(), func(tok *bridge.Token) (bridge.Completion, error) {
				if first == nil {
					first = tok
				}
				if i == 2 {
					return nil, context.Canceled // abandoned round
				}
				tok.Complete(bridge.Result{RV: i})
				return comp, nil
			})
		}
		// a token armed in round 1 delivering after round 5 must be a
		// no-op, counted as a late callback.
		before := bridge.LateCallbacks()
		first.Complete(bridge.Result{RV: -5})
		Expect(bridge.LateCallbacks()).To(BeNumerically(">", before))
		comp := &fakeCompletion{}
		rv, err := slot.Do(context.Background(), func(tok *bridge.Token) (bridge.Completion, error) {
			tok.Complete(bridge.Result{RV: 99})
			return comp, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(rv).To(Equal(99))
	})

	It("is safe for concurrent use across independent Slots", func() {
		done := make(chan int, 10)
		for i := 0; i < 10; i++ {
			i := i
			go func() {
				slot := bridge.NewSlot(i)
				comp := &fakeCompletion{}
				rv, _ := slot.Do(context.Background(), func(tok *bridge.Token) (bridge.Completion, error) {
					tok.Complete(bridge.Result{RV: i})
					return comp, nil
				})
				done <- rv
			}()
		}
		seen := map[int]bool{}
		for i := 0; i < 10; i++ {
			seen[<-done] = true
		}
		Expect(seen).To(HaveLen(10))
	})
})
