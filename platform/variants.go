// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/events"
)

// A Variant is one of the built-in counter hardware profiles.
type Variant int

const (
	// VariantBase is the minimal RISC-V PMU: the cycle and instret
	// counters and nothing else.
	VariantBase Variant = iota
	// VariantAriane is the Ariane (CVA6) core's machine-mode counters.
	VariantAriane

	// VariantCustom marks a descriptor that was not built in.
	VariantCustom
)

var variantNames = [...]string{
	VariantBase:   "base",
	VariantAriane: "ariane",
	VariantCustom: "custom",
}

func (v Variant) String() string {
	if v >= 0 && int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// ParseVariant returns the built-in variant with the given name.
func ParseVariant(name string) (Variant, bool) {
	for v, n := range variantNames[:VariantCustom] {
		if strings.EqualFold(name, n) {
			return Variant(v), true
		}
	}
	return 0, false
}

// Descriptor returns the descriptor of a built-in variant, or nil.
func (v Variant) Descriptor() *Descriptor {
	switch v {
	case VariantBase:
		return Base
	case VariantAriane:
		return Ariane
	}
	return nil
}

// Counter codes of the base PMU. These are the indexes of the bits in the
// counteren register, except that instret skips over time at bit 1.
const (
	CodeCycle   Code = 0
	CodeInstret Code = 1
)

// Counter codes of the Ariane PMU beyond cycle and instret.
const (
	CodeL1ICacheMiss Code = iota + 2
	CodeL1DCacheMiss
	CodeITLBMiss
	CodeDTLBMiss
	CodeLoad
	CodeStore
	CodeException
	CodeExceptionRet
	CodeBranchJump
	CodeCall
	CodeRet
	CodeMisPredict
	CodeSBFull
	CodeIFEmpty
)

// baseMaxEvents is the number of hardware kinds both built-in variants
// decode, through bus-cycles.
const baseMaxEvents = unix.PERF_COUNT_HW_BUS_CYCLES + 1

// Base is the descriptor of [VariantBase].
var Base = &Descriptor{
	Name:         "riscv-base",
	Variant:      VariantBase,
	CounterWidth: 63,
	NumCounters:  2,
	HWEvents: newHWTable(baseMaxEvents, map[uint64]Code{
		unix.PERF_COUNT_HW_CPU_CYCLES:   CodeCycle,
		unix.PERF_COUNT_HW_INSTRUCTIONS: CodeInstret,
	}),
	Counters: []CounterInfo{
		{"cycle", 0xC00, "cycles"},
		{"instret", 0xC02, "instructions"},
	},
}

// Ariane is the descriptor of [VariantAriane].
var Ariane = &Descriptor{
	Name:         "riscv-ariane",
	Variant:      VariantAriane,
	CounterWidth: 63,
	NumCounters:  16,
	HWEvents: newHWTable(baseMaxEvents, map[uint64]Code{
		unix.PERF_COUNT_HW_CPU_CYCLES:          CodeCycle,
		unix.PERF_COUNT_HW_INSTRUCTIONS:        CodeInstret,
		unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS: CodeBranchJump,
		unix.PERF_COUNT_HW_BRANCH_MISSES:       CodeMisPredict,
	}),
	CacheEvents: newCacheTable(
		cacheEntry{events.CacheL1D, []events.CacheOp{events.CacheOpRead, events.CacheOpPrefetch}, events.CacheResultAccess, CodeLoad},
		cacheEntry{events.CacheL1D, []events.CacheOp{events.CacheOpWrite}, events.CacheResultAccess, CodeStore},
		cacheEntry{events.CacheL1D, nil, events.CacheResultMiss, CodeL1DCacheMiss},
		cacheEntry{events.CacheL1I, nil, events.CacheResultAccess, CodeIFEmpty},
		cacheEntry{events.CacheL1I, nil, events.CacheResultMiss, CodeL1ICacheMiss},
		cacheEntry{events.CacheDTLB, nil, events.CacheResultMiss, CodeDTLBMiss},
		cacheEntry{events.CacheITLB, nil, events.CacheResultMiss, CodeITLBMiss},
	),
	Counters: []CounterInfo{
		CodeCycle:        {"cycle", 0xB00, "cycles"},
		CodeInstret:      {"instret", 0xB02, "instructions"},
		CodeL1ICacheMiss: {"l1-icache-miss", 0xB03, "L1-icache-load-misses"},
		CodeL1DCacheMiss: {"l1-dcache-miss", 0xB04, "L1-dcache-load-misses"},
		CodeITLBMiss:     {"itlb-miss", 0xB05, "iTLB-load-misses"},
		CodeDTLBMiss:     {"dtlb-miss", 0xB06, "dTLB-load-misses"},
		CodeLoad:         {"load", 0xB07, "L1-dcache-loads"},
		CodeStore:        {"store", 0xB08, "L1-dcache-stores"},
		CodeException:    {"exception", 0xB09, ""},
		CodeExceptionRet: {"exception-ret", 0xB0A, ""},
		CodeBranchJump:   {"branch-jump", 0xB0B, "branches"},
		CodeCall:         {"call", 0xB0C, ""},
		CodeRet:          {"ret", 0xB0D, ""},
		CodeMisPredict:   {"mis-predict", 0xB0E, "branch-misses"},
		CodeSBFull:       {"sb-full", 0xB0F, ""},
		CodeIFEmpty:      {"if-empty", 0xB10, ""},
	},
}

// compatibles maps device-tree compatible strings to built-in descriptors.
var compatibles = map[string]*Descriptor{
	"riscv,base-pmu": Base,
	"eth,ariane-pmu": Ariane,
}

// Lookup returns the built-in descriptor for a device-tree compatible
// string.
func Lookup(compatible string) (*Descriptor, bool) {
	d, ok := compatibles[compatible]
	return d, ok
}

// Select returns the descriptor named by s, which is a variant name or a
// compatible string.
func Select(s string) (*Descriptor, error) {
	if v, ok := ParseVariant(s); ok {
		return v.Descriptor(), nil
	}
	if d, ok := Lookup(s); ok {
		return d, nil
	}
	return nil, errors.Errorf("unknown platform %q", s)
}
