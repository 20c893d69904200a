// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

// HandleIRQ is the counter interrupt handler. It folds the pending ticks of
// every running event on cpu into their counts, so no counter can wrap more
// than once between readings. It reports whether there was any running event
// to update.
func (p *PMU) HandleIRQ(cpu int) bool {
	if cpu < 0 || cpu >= len(p.cpus) {
		return false
	}
	handled := false
	for i := range p.cpus[cpu].slots {
		ev := p.cpus[cpu].slots[i].ev.Load()
		if ev == nil || ev.state.Load()&StateStopped != 0 {
			continue
		}
		if err := p.update(ev); err != nil {
			p.log.WithError(err).WithField("cpu", cpu).Warn("counter update in interrupt failed")
			continue
		}
		handled = true
	}
	return handled
}
