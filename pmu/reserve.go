// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"sync"
	"sync/atomic"
)

// An IRQController binds and unbinds interrupt lines.
type IRQController interface {
	// RequestIRQ binds handler to line. The handler is called with the CPU
	// that took the interrupt and reports whether it handled it.
	RequestIRQ(line int, name string, handler func(cpu int) bool) error
	// FreeIRQ unbinds line.
	FreeIRQ(line int)
}

// reservation tracks the events alive across all CPUs. The counter hardware
// is reserved while there is at least one.
type reservation struct {
	active atomic.Int64

	mu       sync.Mutex // Held across the 0->1 and 1->0 transitions
	reserved bool
	irqBound bool
	acquires uint64
	releases uint64
}

// get takes a reservation claim for a new event. While the hardware is
// reserved, a claim is a single CAS. Taking the first claim reserves the
// hardware under r.mu, and a claim is only counted once the reservation has
// succeeded, so active > 0 always implies reserved.
func (p *PMU) get() error {
	r := &p.res
	for n := r.active.Load(); n > 0; n = r.active.Load() {
		if r.active.CompareAndSwap(n, n+1) {
			return nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := p.reserveLocked(); err != nil {
		p.log.WithError(err).Warn("PMC hardware not available")
		return ErrHardwareUnavailable
	}
	r.active.Add(1)
	return nil
}

// put drops a claim taken by get.
func (p *PMU) put() {
	if p.res.active.Add(-1) == 0 {
		p.releaseHardware()
	}
}

func (p *PMU) reserveLocked() error {
	r := &p.res
	if r.reserved {
		// Either another claim is live, or the last one went away and its
		// release hasn't run yet. That release will see this claim and leave
		// the hardware reserved.
		return nil
	}
	if irq := p.desc.Interrupt; irq != nil {
		if err := p.irqs.RequestIRQ(irq.Line, irq.Name, p.HandleIRQ); err != nil {
			return err
		}
		r.irqBound = true
		p.log.WithField("irq", irq.Line).Debug("bound counter interrupt")
	}
	r.reserved = true
	r.acquires++
	return nil
}

func (p *PMU) releaseHardware() {
	r := &p.res
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.reserved || r.active.Load() > 0 {
		return
	}
	if r.irqBound {
		p.irqs.FreeIRQ(p.desc.Interrupt.Line)
		r.irqBound = false
		p.log.WithField("irq", p.desc.Interrupt.Line).Debug("freed counter interrupt")
	}
	r.reserved = false
	r.releases++
}

// ActiveEvents returns the number of initialized, not yet destroyed events
// across all CPUs.
func (p *PMU) ActiveEvents() int64 {
	return p.res.active.Load()
}

// Reserved reports whether the counter hardware is currently reserved.
func (p *PMU) Reserved() bool {
	p.res.mu.Lock()
	defer p.res.mu.Unlock()
	return p.res.reserved
}

// ReservationStats returns how many times the hardware has been reserved
// and released.
func (p *PMU) ReservationStats() (acquires, releases uint64) {
	p.res.mu.Lock()
	defer p.res.mu.Unlock()
	return p.res.acquires, p.res.releases
}
