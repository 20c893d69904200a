// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/events"
)

var (
	// ErrInvalidArgument means the request is malformed for this
	// descriptor: an event kind or cache field outside its enumeration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotSupported means the request is well formed but this hardware
	// cannot count it.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNoCapability means this PMU does not handle this class of request
	// at all. A host framework should try another PMU.
	ErrNoCapability = errors.New("no such capability")
)

// MapHardware maps the config of a PERF_TYPE_HARDWARE request to a counter
// code.
func (d *Descriptor) MapHardware(config uint64) (Code, error) {
	if config >= uint64(len(d.HWEvents)) {
		return Unsupported, errors.Wrapf(ErrInvalidArgument, "%s: hardware event %d not in range 0-%d", d.Name, config, len(d.HWEvents)-1)
	}
	code := d.HWEvents[config]
	if code == Unsupported {
		return Unsupported, errors.Wrapf(ErrNotSupported, "%s: %s", d.Name, events.HardwareName(config))
	}
	return code, nil
}

// MapCache maps the config of a PERF_TYPE_HW_CACHE request to a counter
// code.
func (d *Descriptor) MapCache(config uint64) (Code, error) {
	if d.CacheEvents == nil {
		return Unsupported, errors.Wrapf(ErrNoCapability, "%s: no cache events", d.Name)
	}
	level, op, result := events.DecodeCache(config)
	if level >= events.NumCacheLevels || op >= events.NumCacheOps || result >= events.NumCacheResults {
		return Unsupported, errors.Wrapf(ErrInvalidArgument, "%s: cache event %#x has level %d, op %d, result %d", d.Name, config, level, op, result)
	}
	code := d.CacheEvents[level][op][result]
	if code == Unsupported {
		return Unsupported, errors.Wrapf(ErrNotSupported, "%s: %s", d.Name, events.Cache(level, op, result))
	}
	return code, nil
}

// Resolve maps a generic event request to a counter code. Raw requests
// are never supported: only the generic taxonomies are trusted.
func (d *Descriptor) Resolve(attr *unix.PerfEventAttr) (Code, error) {
	switch attr.Type {
	case unix.PERF_TYPE_HARDWARE:
		return d.MapHardware(attr.Config)
	case unix.PERF_TYPE_HW_CACHE:
		return d.MapCache(attr.Config)
	case unix.PERF_TYPE_RAW:
		return Unsupported, errors.Wrapf(ErrNotSupported, "%s: raw event %#x", d.Name, attr.Config)
	}
	return Unsupported, errors.Wrapf(ErrNoCapability, "%s: event type %d", d.Name, attr.Type)
}
