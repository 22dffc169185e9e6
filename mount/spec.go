// Package mount implements the mount registry ("C1"): parsing
// mount specifications, connecting one cluster handle per mount, and
// holding the per-thread I/O contexts and per-mount permission flags
// the design describes as the Mount's invariants.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mount

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Perm is the permission set drawn from {PUT, DELETE, MKCOL, PROPFIND}
// the design describes; GET/HEAD/OPTIONS are always permitted and so
// carry no bit here.
type Perm uint8

const (
	PermPut Perm = 1 << iota
	PermDelete
	PermMkcol
	PermPropfind
)

func (p Perm) Has(f Perm) bool { return p&f != 0 }

// Spec is the parsed form of one `-rados-mount` value or one element of
// the JSON mount-list file ; both forms populate this
// same struct and are checked by the same Validate (ParseSpecString and
// LoadSpecsFile call it; Registry.RegisterAll does not).
type Spec struct {
	Prefix        string `json:"mountpoint"`
	Pool          string `json:"pool"`
	ConfigPath    string `json:"config,omitempty"`
	TimeoutSec    int    `json:"timeout,omitempty"`
	AllowPut      string `json:"allow_put,omitempty"`
	AllowDelete   string `json:"allow_delete,omitempty"`
	AllowMkcol    string `json:"allow_mkcol,omitempty"`
	AllowPropfind string `json:"allow_propfind,omitempty"`
}

// Perm folds the four allow_* strings into a Perm bitset: the design
// says "any of the allow_* being non-empty grants the corresponding
// permission", so the actual string value (e.g. "1", "true", "yes") is
// never inspected, only its emptiness.
func (s Spec) Perm() Perm {
	var p Perm
	if s.AllowPut != "" {
		p |= PermPut
	}
	if s.AllowDelete != "" {
		p |= PermDelete
	}
	if s.AllowMkcol != "" {
		p |= PermMkcol
	}
	if s.AllowPropfind != "" {
		p |= PermPropfind
	}
	return p
}

func (s Spec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

func (s Spec) Validate() error {
	if s.Prefix == "" {
		return fmt.Errorf("mount spec missing required key %q", "mountpoint")
	}
	if s.Pool == "" {
		return fmt.Errorf("mount spec missing required key %q", "pool")
	}
	return nil
}

// ParseSpecString parses the design's comma-separated key=value
// mount spec, e.g. "mountpoint=/r,pool=p1,allow_put=1,allow_delete=1".
func ParseSpecString(s string) (Spec, error) {
	var spec Spec
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Spec{}, fmt.Errorf("invalid mount spec entry %q: expected key=value", kv)
		}
		switch k {
		case "mountpoint":
			spec.Prefix = v
		case "pool":
			spec.Pool = v
		case "config":
			spec.ConfigPath = v
		case "timeout":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Spec{}, fmt.Errorf("invalid timeout %q: %w", v, err)
			}
			spec.TimeoutSec = n
		case "allow_put":
			spec.AllowPut = v
		case "allow_delete":
			spec.AllowDelete = v
		case "allow_mkcol":
			spec.AllowMkcol = v
		case "allow_propfind":
			spec.AllowPropfind = v
		default:
			return Spec{}, fmt.Errorf("unrecognized mount spec key %q", k)
		}
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
