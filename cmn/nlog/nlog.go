// Package nlog provides the gateway's leveled, buffered logger: writes
// are appended to an in-memory line buffer under a mutex and flushed to
// the destination writer (stderr by default, or a per-process file when a
// log directory is configured). Lines bound for stderr, error lines, and
// a buffer past maxBuffered are flushed at once; otherwise the buffer is
// flushed externally (by `hk`) rather than by a background goroutine
// this package owns, so tests can flush deterministically.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/radosdav/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

const maxBuffered = 256 * 1024 // flush once the buffer grows past this

type logger struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	out      *os.File
	toStderr bool
	lastFlsh atomic.Int64
}

var (
	std          = &logger{out: os.Stderr, toStderr: true}
	alsoToStderr bool
	logDir       string
)

// InitFlags registers the gateway's two logging flags, same names the
// rest of this codebase's lineage uses.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&std.toStderr, "logtostderr", true, "log to standard error instead of a file")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as the log file")
}

// SetLogDir switches the destination to the file radosdav.<pid>.log
// under dir, creating dir and opening the file (for append) right away.
func SetLogDir(dir string) (err error) {
	if dir == "" {
		return nil
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(dir, fmt.Sprintf("radosdav.%d.log", os.Getpid()))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	std.mu.Lock()
	std.out = f
	std.toStderr = false
	std.mu.Unlock()
	return nil
}

func (l *logger) write(sev severity, format string, args ...any) {
	line := formatLine(sev, format, args...)
	l.mu.Lock()
	l.buf.WriteString(line)
	full := l.buf.Len() >= maxBuffered
	l.mu.Unlock()

	if l.toStderr || alsoToStderr || sev >= sevErr || full {
		l.Flush()
	}
}

func formatLine(sev severity, format string, args ...any) string {
	ts := time.Now().Format("15:04:05.000000")
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	return fmt.Sprintf("%c %s %s", sevChar[sev], ts, msg)
}

// Flush writes any buffered lines to the destination immediately.
func (l *logger) Flush() {
	l.mu.Lock()
	if l.buf.Len() == 0 {
		l.mu.Unlock()
		return
	}
	b := l.buf.Bytes()
	dst := l.out
	if l.toStderr {
		dst = os.Stderr
	}
	dst.Write(b)
	l.buf.Reset()
	l.lastFlsh.Store(mono.NanoTime())
	l.mu.Unlock()
}

// Since reports how long it has been since the last flush.
func (l *logger) Since() time.Duration { return mono.Since(l.lastFlsh.Load()) }

func Infof(format string, args ...any)    { std.write(sevInfo, format, args...) }
func Warningf(format string, args ...any) { std.write(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { std.write(sevErr, format, args...) }
func Infoln(args ...any)                  { std.write(sevInfo, "", args...) }
func Warningln(args ...any)               { std.write(sevWarn, "", args...) }
func Errorln(args ...any)                 { std.write(sevErr, "", args...) }

// Flush flushes the default logger; `hk` schedules this periodically.
func Flush() { std.Flush() }

// Since reports time elapsed since the default logger last flushed.
func Since() time.Duration { return std.Since() }
