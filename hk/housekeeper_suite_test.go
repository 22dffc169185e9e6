// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/NVIDIA/radosdav/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestHousekeeper(t *testing.T) {
	hk.TestInit()
	go hk.DefaultHK.Run()
	hk.WaitStarted()
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}

var _ = Describe("Housekeeper", func() {
	It("runs a registered job repeatedly until it returns <= 0", func() {
		var runs atomic.Int32
		hk.DefaultHK.Reg("counter", func() time.Duration {
			n := runs.Add(1)
			if n >= 3 {
				return 0
			}
			return time.Millisecond
		}, time.Millisecond)

		Eventually(func() int32 { return runs.Load() }, time.Second, time.Millisecond).Should(Equal(int32(3)))
		Consistently(func() int32 { return runs.Load() }, 20*time.Millisecond, time.Millisecond).Should(Equal(int32(3)))
	})

	It("does not block other jobs when one panics", func() {
		var ran atomic.Bool
		hk.DefaultHK.Reg("panicker", func() time.Duration {
			panic("boom")
		}, time.Millisecond)
		hk.DefaultHK.Reg("survivor", func() time.Duration {
			ran.Store(true)
			return 0
		}, time.Millisecond)

		Eventually(func() bool { return ran.Load() }, time.Second, time.Millisecond).Should(BeTrue())
	})
})
