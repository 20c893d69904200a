// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package events describes generic performance event requests: a type class
// (hardware, hardware cache, raw) and a 64-bit config payload, encoded the
// same way the kernel's perf_event_attr encodes them.
package events

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// An Event represents a generic performance event request that a PMU can be
// asked to count.
type Event interface {
	// String returns the string representation of this event, preferably as the
	// name used by "perf stat -e".
	String() string

	// SetAttrs sets the type and config of this event in the
	// [unix.PerfEventAttr] struct.
	SetAttrs(*unix.PerfEventAttr) error
}

type eventBasic struct {
	name   string
	typ    uint32
	config uint64
}

func (e eventBasic) SetAttrs(a *unix.PerfEventAttr) error {
	a.Type = e.typ
	a.Config = e.config
	return nil
}

func (e eventBasic) String() string {
	return e.name
}

// Generic hardware events, one per PERF_COUNT_HW_* kind.
var (
	EventCPUCycles             = eventBasic{"cpu-cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES}
	EventInstructions          = eventBasic{"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS}
	EventCacheReferences       = eventBasic{"cache-references", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES}
	EventCacheMisses           = eventBasic{"cache-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES}
	EventBranches              = eventBasic{"branches", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS}
	EventBranchMisses          = eventBasic{"branch-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES}
	EventBusCycles             = eventBasic{"bus-cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES}
	EventStalledCyclesFrontend = eventBasic{"stalled-cycles-frontend", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND}
	EventStalledCyclesBackend  = eventBasic{"stalled-cycles-backend", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND}
	EventRefCycles             = eventBasic{"ref-cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_REF_CPU_CYCLES}
)

var hardwareEvents = [...]eventBasic{
	unix.PERF_COUNT_HW_CPU_CYCLES:              EventCPUCycles,
	unix.PERF_COUNT_HW_INSTRUCTIONS:            EventInstructions,
	unix.PERF_COUNT_HW_CACHE_REFERENCES:        EventCacheReferences,
	unix.PERF_COUNT_HW_CACHE_MISSES:            EventCacheMisses,
	unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS:     EventBranches,
	unix.PERF_COUNT_HW_BRANCH_MISSES:           EventBranchMisses,
	unix.PERF_COUNT_HW_BUS_CYCLES:              EventBusCycles,
	unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND: EventStalledCyclesFrontend,
	unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND:  EventStalledCyclesBackend,
	unix.PERF_COUNT_HW_REF_CPU_CYCLES:          EventRefCycles,
}

// NumHardwareKinds is the number of generic hardware event kinds.
const NumHardwareKinds = unix.PERF_COUNT_HW_MAX

// Hardware returns the hardware event of the given kind. Kinds beyond
// [NumHardwareKinds] are allowed and produce a request no PMU can map.
func Hardware(kind uint64) Event {
	if kind < uint64(len(hardwareEvents)) {
		return hardwareEvents[kind]
	}
	return eventBasic{fmt.Sprintf("hardware-%d", kind), unix.PERF_TYPE_HARDWARE, kind}
}

// HardwareName returns the canonical name of a hardware event kind.
func HardwareName(kind uint64) string {
	return Hardware(kind).String()
}

// Raw returns a raw, PMU-specific event request. It is encoded as perf's
// "rNNNN" syntax.
func Raw(config uint64) Event {
	return eventBasic{fmt.Sprintf("r%x", config), unix.PERF_TYPE_RAW, config}
}
