// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

// delta returns the number of ticks between two raw readings of a counter
// that wraps at mask+1.
func delta(prev, raw, mask uint64) uint64 {
	return (raw - prev) & mask
}

// update folds the ticks since the last reading of ev's counter into its
// count. It takes no locks, so it is safe to call from the interrupt
// handler concurrently with a synchronous read.
func (p *PMU) update(ev *Event) error {
	idx := ev.Index()
	if idx < 0 {
		return nil
	}
	var prev, raw uint64
	for {
		prev = ev.prevCount.Load()
		var err error
		raw, err = p.regs.ReadCounter(ev.cpu, idx)
		if err != nil {
			return err
		}
		if ev.prevCount.CompareAndSwap(prev, raw) {
			break
		}
		// Someone else moved prevCount. Their delta covers up to their
		// reading, so start over from it.
	}
	ev.count.Add(delta(prev, raw, p.mask))
	return nil
}

// seed sets ev's baseline to the current counter value. The counters can't
// be written, so this is what makes the first delta after a start correct.
func (p *PMU) seed(ev *Event) error {
	raw, err := p.regs.ReadCounter(ev.cpu, ev.Index())
	if err != nil {
		return err
	}
	ev.prevCount.Store(raw)
	return nil
}
