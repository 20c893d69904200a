// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// A CacheLevel is the cache (or TLB, or predictor) a hardware cache event
// counts.
type CacheLevel uint8

const (
	CacheL1D  CacheLevel = unix.PERF_COUNT_HW_CACHE_L1D
	CacheL1I  CacheLevel = unix.PERF_COUNT_HW_CACHE_L1I
	CacheLL   CacheLevel = unix.PERF_COUNT_HW_CACHE_LL
	CacheDTLB CacheLevel = unix.PERF_COUNT_HW_CACHE_DTLB
	CacheITLB CacheLevel = unix.PERF_COUNT_HW_CACHE_ITLB
	CacheBPU  CacheLevel = unix.PERF_COUNT_HW_CACHE_BPU
	CacheNode CacheLevel = unix.PERF_COUNT_HW_CACHE_NODE

	NumCacheLevels = unix.PERF_COUNT_HW_CACHE_MAX
)

// A CacheOp is the kind of access a hardware cache event counts.
type CacheOp uint8

const (
	CacheOpRead     CacheOp = unix.PERF_COUNT_HW_CACHE_OP_READ
	CacheOpWrite    CacheOp = unix.PERF_COUNT_HW_CACHE_OP_WRITE
	CacheOpPrefetch CacheOp = unix.PERF_COUNT_HW_CACHE_OP_PREFETCH

	NumCacheOps = unix.PERF_COUNT_HW_CACHE_OP_MAX
)

// A CacheResult says whether a hardware cache event counts accesses or
// misses.
type CacheResult uint8

const (
	CacheResultAccess CacheResult = unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS
	CacheResultMiss   CacheResult = unix.PERF_COUNT_HW_CACHE_RESULT_MISS

	NumCacheResults = unix.PERF_COUNT_HW_CACHE_RESULT_MAX
)

// Canonical names, as printed by perf (see evsel.c:evsel__hw_cache).
var (
	cacheLevelNames  = [NumCacheLevels]string{"L1-dcache", "L1-icache", "LLC", "dTLB", "iTLB", "branch", "node"}
	cacheOpNames     = [NumCacheOps]string{"load", "store", "prefetch"}
	cacheResultNames = [NumCacheResults]string{"refs", "misses"}
)

func (l CacheLevel) String() string {
	if int(l) < len(cacheLevelNames) {
		return cacheLevelNames[l]
	}
	return fmt.Sprintf("cache-level-%d", uint8(l))
}

func (o CacheOp) String() string {
	if int(o) < len(cacheOpNames) {
		return cacheOpNames[o]
	}
	return fmt.Sprintf("cache-op-%d", uint8(o))
}

func (r CacheResult) String() string {
	if int(r) < len(cacheResultNames) {
		return cacheResultNames[r]
	}
	return fmt.Sprintf("cache-result-%d", uint8(r))
}

// CacheConfig packs a cache triple into a PERF_TYPE_HW_CACHE config value.
func CacheConfig(level CacheLevel, op CacheOp, result CacheResult) uint64 {
	return uint64(level) | uint64(op)<<8 | uint64(result)<<16
}

// DecodeCache unpacks the three low bytes of a PERF_TYPE_HW_CACHE config.
// The fields are not range checked.
func DecodeCache(config uint64) (level CacheLevel, op CacheOp, result CacheResult) {
	level = CacheLevel(config & 0xff)
	op = CacheOp((config >> 8) & 0xff)
	result = CacheResult((config >> 16) & 0xff)
	return
}

// Cache returns the hardware cache event for the given triple.
func Cache(level CacheLevel, op CacheOp, result CacheResult) Event {
	name := level.String() + "-" + op.String() + "-" + result.String()
	return eventBasic{name, unix.PERF_TYPE_HW_CACHE, CacheConfig(level, op, result)}
}
