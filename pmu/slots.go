// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// cpuSlots is one CPU's counter slot table. Only the goroutine driving that
// CPU writes it. Its fields are atomic so the interrupt handler and metrics
// can look at it from elsewhere.
type cpuSlots struct {
	n     atomic.Int32
	slots []slot
}

type slot struct {
	ev atomic.Pointer[Event]
}

// allocate binds ev to the counter its code names. There is no choice of
// counter to make: the code is the index.
func (c *cpuSlots) allocate(ev *Event) (int, error) {
	idx := int(ev.code)
	if int(c.n.Load()) == len(c.slots) {
		return -1, errors.Wrapf(ErrNoSpace, "cpu %d: all %d counters in use", ev.cpu, len(c.slots))
	}
	if !c.slots[idx].ev.CompareAndSwap(nil, ev) {
		return -1, errors.Wrapf(ErrNoSpace, "cpu %d: counter %d in use", ev.cpu, idx)
	}
	c.n.Add(1)
	return idx, nil
}

// free releases counter idx. Freeing an empty slot is a bug in the caller.
func (c *cpuSlots) free(idx int) {
	if c.slots[idx].ev.Swap(nil) == nil {
		panic(fmt.Sprintf("pmu: free of unused counter %d", idx))
	}
	c.n.Add(-1)
}

// used returns the number of occupied slots.
func (c *cpuSlots) used() int {
	return int(c.n.Load())
}

// SlotsUsed returns the number of counters in use on cpu.
func (p *PMU) SlotsUsed(cpu int) int {
	return p.cpus[cpu].used()
}
