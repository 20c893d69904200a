// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/platform"
)

// State bits of an event, as in the host framework's PERF_HES_* flags. An
// event with neither bit is running.
const (
	StateStopped  uint32 = 1 << 0 // Not counting
	StateUpToDate uint32 = 1 << 1 // Count reflects every tick up to the stop
)

// Flags modify lifecycle operations, as the host framework's PERF_EF_*
// flags do.
type Flags uint32

const (
	FlagStart  Flags = 1 << 0 // Add: start the event immediately
	FlagReload Flags = 1 << 1 // Start: the count is up to date
	FlagUpdate Flags = 1 << 2 // Stop: fold in the final delta
)

// An Event is one logical event counting on one CPU.
type Event struct {
	p    *PMU
	cpu  int
	typ  uint32
	cfg  uint64
	code platform.Code

	idx   atomic.Int32 // Counter index, or -1 when not added
	state atomic.Uint32

	prevCount atomic.Uint64 // Last raw counter value seen
	count     atomic.Uint64 // Logical count

	destroyed bool
}

// Init creates an event for the request in attr, counting on cpu. Only the
// Type and Config fields of attr are consulted.
//
// The first event alive reserves the counter hardware. If that fails, Init
// returns [ErrHardwareUnavailable]. If the request can't be mapped to a
// counter, Init returns [ErrInvalidArgument], [ErrNotSupported], or
// [ErrNoCapability] and the reservation claim is dropped again.
func (p *PMU) Init(attr *unix.PerfEventAttr, cpu int) (*Event, error) {
	if cpu < 0 || cpu >= len(p.cpus) {
		return nil, errors.Wrapf(ErrInvalidArgument, "cpu %d not in range 0-%d", cpu, len(p.cpus)-1)
	}
	if err := p.get(); err != nil {
		return nil, err
	}
	code, err := p.desc.Resolve(attr)
	if err != nil {
		p.put()
		return nil, err
	}
	ev := &Event{p: p, cpu: cpu, typ: attr.Type, cfg: attr.Config, code: code}
	ev.idx.Store(-1)
	ev.state.Store(StateStopped | StateUpToDate)
	p.log.WithFields(ev.fields()).Debug("init event")
	return ev, nil
}

// Add binds ev to its counter on its CPU. If every usable counter is taken it
// returns [ErrNoSpace] and ev stays unbound. With [FlagStart], ev is also
// started.
func (p *PMU) Add(ev *Event, flags Flags) error {
	p.checkLive(ev)
	if idx := ev.Index(); idx >= 0 {
		panic(fmt.Sprintf("pmu: add of event already on counter %d", idx))
	}
	idx, err := p.cpus[ev.cpu].allocate(ev)
	if err != nil {
		return err
	}
	ev.idx.Store(int32(idx))
	ev.state.Store(StateStopped | StateUpToDate)
	p.log.WithFields(ev.fields()).Debug("add event")

	if flags&FlagStart != 0 {
		if err := p.Start(ev, FlagReload); err != nil {
			ev.idx.Store(-1)
			p.cpus[ev.cpu].free(idx)
			return err
		}
	}
	return nil
}

// Start starts counting ev. It must be stopped.
func (p *PMU) Start(ev *Event, flags Flags) error {
	p.checkAdded(ev, "start")
	state := ev.state.Load()
	if state&StateStopped == 0 {
		panic("pmu: start of running event")
	}
	if flags&FlagReload != 0 && state&StateUpToDate == 0 {
		panic("pmu: reload of event that is not up to date")
	}
	if err := p.seed(ev); err != nil {
		return errors.Wrapf(err, "starting %s", ev)
	}
	ev.state.Store(0)
	return nil
}

// Stop stops counting ev. It must be running. With [FlagUpdate], the ticks
// up to the stop are folded into ev's count.
func (p *PMU) Stop(ev *Event, flags Flags) error {
	p.checkAdded(ev, "stop")
	state := ev.state.Load()
	if state&StateStopped != 0 {
		panic("pmu: stop of stopped event")
	}
	state |= StateStopped
	ev.state.Store(state)
	if flags&FlagUpdate != 0 && state&StateUpToDate == 0 {
		if err := p.update(ev); err != nil {
			return errors.Wrapf(err, "stopping %s", ev)
		}
		ev.state.Store(state | StateUpToDate)
	}
	return nil
}

// Del stops ev, folding in its final count, and releases its counter.
func (p *PMU) Del(ev *Event) error {
	p.checkAdded(ev, "del")
	var err error
	state := ev.state.Load()
	if state&StateStopped == 0 {
		err = p.Stop(ev, FlagUpdate)
	} else if state&StateUpToDate == 0 {
		// Stopped without an update. The counter still has the ticks up
		// to the stop.
		if err = p.update(ev); err == nil {
			ev.state.Store(state | StateUpToDate)
		}
	}
	idx := ev.Index()
	ev.idx.Store(-1)
	p.cpus[ev.cpu].free(idx)
	p.log.WithFields(ev.fields()).Debug("del event")
	return err
}

// Destroy releases ev's claim on the counter hardware. The last event alive
// releases the hardware. ev must not be on a counter, and must not be used
// again.
func (p *PMU) Destroy(ev *Event) {
	p.checkLive(ev)
	if idx := ev.Index(); idx >= 0 {
		panic(fmt.Sprintf("pmu: destroy of event still on counter %d", idx))
	}
	ev.destroyed = true
	p.put()
	p.log.WithFields(ev.fields()).Debug("destroy event")
}

// Read returns ev's logical count. If ev is running, the count first
// catches up with the hardware.
func (p *PMU) Read(ev *Event) (uint64, error) {
	p.checkLive(ev)
	if ev.Running() {
		if err := p.update(ev); err != nil {
			return ev.count.Load(), err
		}
	}
	return ev.count.Load(), nil
}

func (p *PMU) checkLive(ev *Event) {
	if ev.p != p {
		panic("pmu: event belongs to another PMU")
	}
	if ev.destroyed {
		panic("pmu: use of destroyed event")
	}
}

func (p *PMU) checkAdded(ev *Event, op string) {
	p.checkLive(ev)
	if ev.Index() < 0 {
		panic("pmu: " + op + " of event not on a counter")
	}
}

// Count returns ev's logical count without reading the hardware.
func (ev *Event) Count() uint64 {
	return ev.count.Load()
}

// CPU returns the CPU ev counts on.
func (ev *Event) CPU() int {
	return ev.cpu
}

// Code returns the counter code ev was mapped to.
func (ev *Event) Code() platform.Code {
	return ev.code
}

// Index returns the counter ev is on, or -1.
func (ev *Event) Index() int {
	return int(ev.idx.Load())
}

// State returns ev's StateStopped and StateUpToDate bits.
func (ev *Event) State() uint32 {
	return ev.state.Load()
}

// Running reports whether ev is counting.
func (ev *Event) Running() bool {
	return ev.Index() >= 0 && ev.state.Load()&StateStopped == 0
}

func (ev *Event) String() string {
	name := fmt.Sprintf("type %d config %#x", ev.typ, ev.cfg)
	if c, ok := ev.p.desc.Counter(int(ev.code)); ok {
		name = c.Name
	}
	return fmt.Sprintf("%s on cpu %d", name, ev.cpu)
}

func (ev *Event) fields() log.Fields {
	return log.Fields{"cpu": ev.cpu, "type": ev.typ, "config": ev.cfg, "code": ev.code, "idx": ev.Index()}
}
