/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseportListen binds addr with SO_REUSEPORT set, letting several
// processes (or, here, several invocations sharing one cgroup) share
// one listen address the way the source's per-worker-thread model
// shared one socket across threads.
func reuseportListen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
