// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseEvent parses an event name in one of the forms perf accepts for the
// CPU PMU:
//
//	cycles, L1-dcache-load-misses   symbolic hardware and cache events
//	cpu/cycles/                     a symbolic event qualified by PMU
//	r1a2b                           a raw event code in hex
//	cpu/config=0x1a2b/              a raw event code
//
// Raw events parse successfully. Whether a PMU accepts them is up to the PMU.
func ParseEvent(name string) (Event, error) {
	sym := name
	if strings.Count(name, "/") == 2 && strings.HasSuffix(name, "/") {
		pmu, rest, _ := strings.Cut(strings.TrimSuffix(name, "/"), "/")
		if pmu != "cpu" {
			return nil, fmt.Errorf("event %q: unknown PMU %q", name, pmu)
		}
		if k, v, ok := strings.Cut(rest, "="); ok {
			if k != "config" {
				return nil, fmt.Errorf("event %q: unknown parameter %q", name, k)
			}
			// The value can be decimal, hex, or octal.
			config, err := strconv.ParseUint(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("event %q: parameter %q not a number", name, rest)
			}
			return eventBasic{name, unix.PERF_TYPE_RAW, config}, nil
		}
		sym = rest
	}

	if ev, ok := resolveBuiltin(sym); ok {
		ev.name = name
		return ev, nil
	}

	if len(sym) > 1 && sym[0] == 'r' {
		if config, err := strconv.ParseUint(sym[1:], 16, 64); err == nil {
			return eventBasic{name, unix.PERF_TYPE_RAW, config}, nil
		}
	}
	return nil, fmt.Errorf("unknown event %q", name)
}

// ParseEvents parses a comma-separated list of event names.
func ParseEvents(list string) ([]Event, error) {
	var evs []Event
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev, err := ParseEvent(name)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}
