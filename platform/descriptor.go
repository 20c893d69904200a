// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package platform describes the counter hardware of one PMU variant and maps
// generic event requests onto its counters.
//
// A [Descriptor] is static data. It is selected once at startup, either by
// [Variant], by device-tree [Discover]y, or by loading a YAML description, and
// is never modified after that.
package platform

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/aclements/go-perfmux/events"
)

// A Code identifies a physical counter. For the counter hardware described
// here, the code is also the counter's slot index: counters are not
// interchangeable, each is wired to one event family.
type Code int

// Unsupported marks a table entry the hardware cannot count.
const Unsupported Code = -1

// A CacheTable maps a (level, op, result) triple to a counter code.
type CacheTable [events.NumCacheLevels][events.NumCacheOps][events.NumCacheResults]Code

// A CounterInfo names one physical counter.
type CounterInfo struct {
	Name string // Display name
	CSR  uint16 // Control and status register number

	// Host is the name of a host event (see [events.ParseEvent]) that stands
	// in for this counter when running on a machine that is not this
	// hardware. Empty means there is no stand-in.
	Host string
}

// An Interrupt identifies the interrupt line a variant's counters share.
type Interrupt struct {
	Line int
	Name string
}

// A Descriptor is the static description of one PMU variant.
type Descriptor struct {
	Name    string
	Variant Variant

	CounterWidth int // Width in bits of each physical counter register
	NumCounters  int

	// HWEvents maps a generic hardware event kind to a counter code. Its
	// length bounds the kinds this descriptor can decode at all.
	HWEvents []Code

	// CacheEvents is nil if this variant has no cache counters.
	CacheEvents *CacheTable

	// Counters describes each counter by index. It may be shorter than
	// NumCounters.
	Counters []CounterInfo

	// Interrupt is nil if this variant has no counter interrupt.
	Interrupt *Interrupt
}

// CounterMask returns the mask that reduces a value modulo 2^CounterWidth.
func (d *Descriptor) CounterMask() uint64 {
	if d.CounterWidth >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<d.CounterWidth - 1
}

// Counter returns the description of counter idx, if there is one.
func (d *Descriptor) Counter(idx int) (CounterInfo, bool) {
	if idx < 0 || idx >= len(d.Counters) {
		return CounterInfo{}, false
	}
	return d.Counters[idx], true
}

// Validate checks that d is internally consistent.
func (d *Descriptor) Validate() error {
	if d.CounterWidth < 1 || d.CounterWidth > 64 {
		return errors.Errorf("platform %s: counter width %d not in range 1-64", d.Name, d.CounterWidth)
	}
	if d.NumCounters < 1 {
		return errors.Errorf("platform %s: no counters", d.Name)
	}
	if len(d.Counters) > d.NumCounters {
		return errors.Errorf("platform %s: %d counters described, only %d exist", d.Name, len(d.Counters), d.NumCounters)
	}
	check := func(what string, code Code) error {
		if code != Unsupported && (code < 0 || int(code) >= d.NumCounters) {
			return errors.Errorf("platform %s: %s maps to counter %d, not in range 0-%d", d.Name, what, code, d.NumCounters-1)
		}
		return nil
	}
	for kind, code := range d.HWEvents {
		if err := check(events.HardwareName(uint64(kind)), code); err != nil {
			return err
		}
	}
	if d.CacheEvents != nil {
		for level := range d.CacheEvents {
			for op := range d.CacheEvents[level] {
				for result, code := range d.CacheEvents[level][op] {
					ev := events.Cache(events.CacheLevel(level), events.CacheOp(op), events.CacheResult(result))
					if err := check(ev.String(), code); err != nil {
						return err
					}
				}
			}
		}
	}
	if d.Interrupt != nil && d.Interrupt.Line < 0 {
		return errors.Errorf("platform %s: bad interrupt line %d", d.Name, d.Interrupt.Line)
	}
	return nil
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%d counters, %d bits)", d.Name, d.NumCounters, d.CounterWidth)
}

// cacheEntry is one row of a declarative cache table.
type cacheEntry struct {
	level  events.CacheLevel
	ops    []events.CacheOp // nil means every op
	result events.CacheResult
	code   Code
}

// newCacheTable builds a CacheTable in which everything not listed is
// Unsupported.
func newCacheTable(entries ...cacheEntry) *CacheTable {
	var t CacheTable
	for l := range t {
		for o := range t[l] {
			for r := range t[l][o] {
				t[l][o][r] = Unsupported
			}
		}
	}
	for _, e := range entries {
		ops := e.ops
		if ops == nil {
			ops = []events.CacheOp{events.CacheOpRead, events.CacheOpWrite, events.CacheOpPrefetch}
		}
		for _, op := range ops {
			t[e.level][op][e.result] = e.code
		}
	}
	return &t
}

// newHWTable builds a hardware event table of n kinds in which everything
// not listed is Unsupported.
func newHWTable(n int, codes map[uint64]Code) []Code {
	t := make([]Code, n)
	for i := range t {
		t[i] = Unsupported
	}
	for kind, code := range codes {
		t[kind] = code
	}
	return t
}
