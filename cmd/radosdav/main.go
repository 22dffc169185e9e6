// Command radosdav runs the RADOS-backed WebDAV gateway: it connects
// every configured mount, then serves OPTIONS/HEAD/GET/PUT/DELETE/
// MKCOL/PROPFIND over HTTP via fasthttp.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/NVIDIA/radosdav/cmn/nlog"
	"github.com/NVIDIA/radosdav/dav"
	"github.com/NVIDIA/radosdav/gwerr"
	"github.com/NVIDIA/radosdav/gwstats"
	"github.com/NVIDIA/radosdav/hk"
	"github.com/NVIDIA/radosdav/mount"
	"github.com/NVIDIA/radosdav/radosx"
	"github.com/NVIDIA/radosdav/radosx/fake"
)

// mountSpecs collects repeated -rados-mount flag occurrences.
type mountSpecs []string

func (m *mountSpecs) String() string { return fmt.Sprint([]string(*m)) }
func (m *mountSpecs) Set(s string) error {
	*m = append(*m, s)
	return nil
}

func main() {
	var specs mountSpecs
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	timeoutSec := flag.Int("rados-timeout", 0, "default per-mount timeout in seconds, applied to mounts that don't set their own")
	mountsFile := flag.String("rados-mounts-file", "", "JSON file listing additional mount specs")
	asyncWorkers := flag.Int("rados-async-workers", 0, "async slots per worker thread; 0 serves every mount synchronously")
	threads := flag.Int("rados-threads", 1, "worker threads, i.e. I/O contexts opened per mount")
	statTTL := flag.Duration("rados-statcache-ttl", 2*time.Second, "stat cache TTL; 0 disables the cache")
	metricsAddr := flag.String("rados-metrics-listen", "", "Prometheus /metrics listen address; empty disables metrics")
	logDir := flag.String("log-dir", "", "directory for log files")
	reusePort := flag.Bool("rados-reuseport", false, "bind the HTTP listener with SO_REUSEPORT")
	flag.Var(&specs, "rados-mount", "mount spec key=value[,key=value...]; repeatable")
	nlog.InitFlags(flag.CommandLine)
	flag.Parse()

	if *logDir != "" {
		if err := nlog.SetLogDir(*logDir); err != nil {
			gwerr.Exitf("log-dir: %v", err)
		}
	}

	parsedSpecs, err := parseSpecs(specs, *mountsFile)
	if err != nil {
		gwerr.Exitf("mount specs: %v", err)
	}
	if len(parsedSpecs) == 0 {
		gwerr.Exitf("at least one -rados-mount or -rados-mounts-file entry is required")
	}
	for i := range parsedSpecs {
		if parsedSpecs[i].TimeoutSec == 0 {
			parsedSpecs[i].TimeoutSec = *timeoutSec
		}
	}

	// hk must be running before Registry.RegisterAll, which registers
	// each mount's existence-filter rebuild job as part of setup.
	go hk.DefaultHK.Run()
	hk.DefaultHK.Reg("nlog-flush", func() time.Duration {
		nlog.Flush()
		return 5 * time.Second
	}, 5*time.Second)

	// Production wiring would supply a real librados-backed ConnFactory
	// here; that binding is out of scope for this module (see the
	// radosx package doc), so the reference wiring uses the in-memory
	// fake the test suites also run against.
	registry := mount.NewRegistry(*threads, *statTTL, func() radosx.Conn { return fake.NewConn() })
	if err := registry.RegisterAll(parsedSpecs, *asyncWorkers > 0); err != nil {
		mount.Exit(err)
	}

	handler := dav.NewHandler(registry, *threads, *asyncWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsAddr != "" {
		go func() {
			if err := gwstats.Serve(ctx, *metricsAddr); err != nil && err != http.ErrServerClosed {
				nlog.Errorf("gwstats: %v", err)
			}
		}()
	}

	ln, err := listen(*listenAddr, *reusePort)
	if err != nil {
		gwerr.Exitf("listen %s: %v", *listenAddr, err)
	}

	srv := &fasthttp.Server{Handler: handler.ServeHTTP}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	nlog.Infof("radosdav: listening on %s (async=%v threads=%d mounts=%d)",
		*listenAddr, *asyncWorkers > 0, *threads, len(parsedSpecs))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			nlog.Errorf("serve: %v", err)
		}
	case sig := <-sigc:
		nlog.Infof("radosdav: received %s, shutting down", sig)
		cancel()
		hk.DefaultHK.Stop()
		shutdownCtx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = srv.ShutdownWithContext(shutdownCtx)
		scancel()
	}
	nlog.Flush()
}

func parseSpecs(cli mountSpecs, mountsFile string) ([]mount.Spec, error) {
	var out []mount.Spec
	for _, s := range cli {
		spec, err := mount.ParseSpecString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	if mountsFile != "" {
		fromFile, err := mount.LoadSpecsFile(mountsFile)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	return out, nil
}

func listen(addr string, reuse bool) (net.Listener, error) {
	if !reuse {
		return net.Listen("tcp", addr)
	}
	return reuseportListen(addr)
}
