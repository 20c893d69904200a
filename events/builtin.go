// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

type cacheName[T ~uint8] struct {
	name string
	val  T
}

// builtinNames are the symbolic event names perf knows without consulting
// any PMU description.
var builtinNames struct {
	hw map[string]uint64 // Name -> PERF_COUNT_HW_*

	level  []cacheName[CacheLevel]
	op     []cacheName[CacheOp]
	result []cacheName[CacheResult]

	// allowedOps is a bitmap of the ops perf accepts for each level.
	allowedOps [NumCacheLevels]uint8

	once sync.Once
}

func initBuiltinNames() {
	b := &builtinNames

	// See parse-events.c:event_symbols_hw
	b.hw = map[string]uint64{
		"cpu-cycles":              unix.PERF_COUNT_HW_CPU_CYCLES,
		"cycles":                  unix.PERF_COUNT_HW_CPU_CYCLES,
		"instructions":            unix.PERF_COUNT_HW_INSTRUCTIONS,
		"cache-references":        unix.PERF_COUNT_HW_CACHE_REFERENCES,
		"cache-misses":            unix.PERF_COUNT_HW_CACHE_MISSES,
		"branch-instructions":     unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS,
		"branches":                unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS,
		"branch-misses":           unix.PERF_COUNT_HW_BRANCH_MISSES,
		"bus-cycles":              unix.PERF_COUNT_HW_BUS_CYCLES,
		"stalled-cycles-frontend": unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND,
		"idle-cycles-frontend":    unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND,
		"stalled-cycles-backend":  unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND,
		"idle-cycles-backend":     unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND,
		"ref-cycles":              unix.PERF_COUNT_HW_REF_CPU_CYCLES,
	}

	// See evsel.c:evsel__hw_cache
	b.level = cacheNames(map[CacheLevel][]string{
		CacheL1D:  {"L1-dcache", "l1-d", "l1d", "L1-data"},
		CacheL1I:  {"L1-icache", "l1-i", "l1i", "L1-instruction"},
		CacheLL:   {"LLC", "L2"},
		CacheDTLB: {"dTLB", "d-tlb", "Data-TLB"},
		CacheITLB: {"iTLB", "i-tlb", "Instruction-TLB"},
		CacheBPU:  {"branch", "branches", "bpu", "btb", "bpc"},
		CacheNode: {"node"},
	})
	// See evsel.c:evsel__hw_cache_op
	b.op = cacheNames(map[CacheOp][]string{
		CacheOpRead:     {"load", "loads", "read"},
		CacheOpWrite:    {"store", "stores", "write"},
		CacheOpPrefetch: {"prefetch", "prefetches", "speculative-read", "speculative-load"},
	})
	// See evsel.c:evsel__hw_cache_result
	b.result = cacheNames(map[CacheResult][]string{
		CacheResultAccess: {"refs", "Reference", "ops", "access"},
		CacheResultMiss:   {"misses", "miss"},
	})

	r := uint8(1) << CacheOpRead
	w := uint8(1) << CacheOpWrite
	p := uint8(1) << CacheOpPrefetch
	b.allowedOps = [NumCacheLevels]uint8{
		CacheL1D:  r | w | p,
		CacheL1I:  r | p,
		CacheLL:   r | w | p,
		CacheDTLB: r | w | p,
		CacheITLB: r,
		CacheBPU:  r,
		CacheNode: r | w | p,
	}
}

// cacheNames flattens an alias table, longest names first so that prefix
// matching finds "L1-dcache" before "l1d".
func cacheNames[T ~uint8](m map[T][]string) []cacheName[T] {
	var out []cacheName[T]
	for val, names := range m {
		for _, name := range names {
			out = append(out, cacheName[T]{name, val})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].name) != len(out[j].name) {
			return len(out[i].name) > len(out[j].name)
		}
		return out[i].name < out[j].name
	})
	return out
}

// matchCache matches a name from names at the start of s. It returns the
// remainder of s after the name and a "-" separator.
func matchCache[T ~uint8](s string, names []cacheName[T]) (T, string, bool) {
	for _, n := range names {
		if s == n.name {
			return n.val, "", true
		}
		if strings.HasPrefix(s, n.name) && s[len(n.name)] == '-' {
			return n.val, s[len(n.name)+1:], true
		}
	}
	return 0, "", false
}

// resolveBuiltin resolves a symbolic hardware or cache event name.
func resolveBuiltin(name string) (eventBasic, bool) {
	builtinNames.once.Do(initBuiltinNames)
	b := &builtinNames

	if kind, ok := b.hw[name]; ok {
		return eventBasic{name, unix.PERF_TYPE_HARDWARE, kind}, true
	}

	// See parse-events.c:parse_events__decode_legacy_cache. Up to two more
	// fields follow the level, an op and a result in either order.
	level, s, ok := matchCache(name, b.level)
	if !ok {
		return eventBasic{}, false
	}
	op, result := CacheOpRead, CacheResultAccess
	var haveOp, haveResult bool
	for i := 0; i < 2 && s != ""; i++ {
		if !haveOp {
			if op2, s2, ok := matchCache(s, b.op); ok {
				op, s, haveOp = op2, s2, true
				continue
			}
		}
		if !haveResult {
			if result2, s2, ok := matchCache(s, b.result); ok {
				result, s, haveResult = result2, s2, true
				continue
			}
		}
		break
	}
	if s != "" || b.allowedOps[level]&(1<<op) == 0 {
		return eventBasic{}, false
	}
	return eventBasic{name, unix.PERF_TYPE_HW_CACHE, CacheConfig(level, op, result)}, true
}
