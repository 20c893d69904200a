// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package sim simulates counter registers and interrupt lines, for tests and
// for running without counter hardware.
package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Registers is a bank of free-running counters, numCounters per CPU, that
// wrap at a fixed width. All methods are safe for concurrent use.
type Registers struct {
	numCPU, numCounters int
	mask                uint64
	regs                []atomic.Uint64
}

// New returns a bank of zeroed registers.
func New(numCPU, numCounters int, width uint) *Registers {
	mask := ^uint64(0)
	if width < 64 {
		mask = 1<<width - 1
	}
	return &Registers{
		numCPU:      numCPU,
		numCounters: numCounters,
		mask:        mask,
		regs:        make([]atomic.Uint64, numCPU*numCounters),
	}
}

func (r *Registers) reg(cpu, idx int) (*atomic.Uint64, error) {
	if cpu < 0 || cpu >= r.numCPU {
		return nil, errors.Errorf("sim: cpu %d out of range", cpu)
	}
	if idx < 0 || idx >= r.numCounters {
		return nil, errors.Errorf("sim: counter %d out of range", idx)
	}
	return &r.regs[cpu*r.numCounters+idx], nil
}

func (r *Registers) must(cpu, idx int) *atomic.Uint64 {
	reg, err := r.reg(cpu, idx)
	if err != nil {
		panic(err)
	}
	return reg
}

// Advance adds n ticks to counter idx on cpu, wrapping at the width.
func (r *Registers) Advance(cpu, idx int, n uint64) {
	reg := r.must(cpu, idx)
	for {
		old := reg.Load()
		if reg.CompareAndSwap(old, (old+n)&r.mask) {
			return
		}
	}
}

// Set sets counter idx on cpu to v, truncated to the width.
func (r *Registers) Set(cpu, idx int, v uint64) {
	r.must(cpu, idx).Store(v & r.mask)
}

// Load returns counter idx on cpu.
func (r *Registers) Load(cpu, idx int) uint64 {
	return r.must(cpu, idx).Load()
}

// ReadCounter implements pmu.Counters.
func (r *Registers) ReadCounter(cpu, idx int) (uint64, error) {
	reg, err := r.reg(cpu, idx)
	if err != nil {
		return 0, err
	}
	return reg.Load(), nil
}

// Run advances every CPU's counters once per period until ctx is done. Each
// counter idx is advanced by rates[idx] ticks.
func (r *Registers) Run(ctx context.Context, period time.Duration, rates map[int]uint64) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for cpu := 0; cpu < r.numCPU; cpu++ {
				for idx, n := range rates {
					if idx >= 0 && idx < r.numCounters {
						r.Advance(cpu, idx, n)
					}
				}
			}
		}
	}
}
