// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package perf is the host side of a [pmu.PMU]: a registry that routes
// generic event requests to PMUs, counters that drive events through their
// lifecycle, and counter registers backed by the host's perf_event_open.
package perf

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/pmu"
)

// A Registration is one PMU known to a [Framework].
type Registration struct {
	Name string
	Type uint32
	PMU  *pmu.PMU
}

// A Framework routes event requests to registered PMUs and tracks the
// counters open on them. It implements [pmu.Registry].
type Framework struct {
	log log.FieldLogger

	mu       sync.Mutex
	pmus     []Registration
	counters map[*Counter]struct{}

	// sched serializes Add and Del per CPU, as PMU slot tables require.
	sched sync.Map // int -> *sync.Mutex
}

// NewFramework returns an empty framework. A nil logger means the logrus
// standard logger.
func NewFramework(logger log.FieldLogger) *Framework {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Framework{log: logger, counters: make(map[*Counter]struct{})}
}

func (fw *Framework) RegisterPMU(name string, typ uint32, p *pmu.PMU) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, r := range fw.pmus {
		if r.Name == name {
			return errors.Errorf("PMU %q already registered", name)
		}
	}
	fw.pmus = append(fw.pmus, Registration{name, typ, p})
	return nil
}

// PMUs returns the registered PMUs in registration order.
func (fw *Framework) PMUs() []Registration {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return append([]Registration(nil), fw.pmus...)
}

// Counters returns the counters currently open.
func (fw *Framework) Counters() []*Counter {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	cs := make([]*Counter, 0, len(fw.counters))
	for c := range fw.counters {
		cs = append(cs, c)
	}
	return cs
}

// open initializes an event for attr on the first PMU that takes it. A PMU
// registered with the raw type is offered every request. A PMU that reports
// [pmu.ErrNoCapability] is skipped. Any other error ends the search.
func (fw *Framework) open(attr *unix.PerfEventAttr, cpu int) (*pmu.PMU, *pmu.Event, error) {
	for _, r := range fw.PMUs() {
		if r.Type != attr.Type && r.Type != unix.PERF_TYPE_RAW {
			continue
		}
		ev, err := r.PMU.Init(attr, cpu)
		if errors.Is(err, pmu.ErrNoCapability) {
			fw.log.WithFields(log.Fields{"pmu": r.Name, "type": attr.Type}).Debug("PMU declined event")
			continue
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "PMU %s", r.Name)
		}
		return r.PMU, ev, nil
	}
	return nil, nil, errors.Wrapf(pmu.ErrNoCapability, "no PMU for event type %d config %#x", attr.Type, attr.Config)
}

func (fw *Framework) track(c *Counter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.counters[c] = struct{}{}
}

func (fw *Framework) untrack(c *Counter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.counters, c)
}

// cpuLock returns the lock that serializes scheduling on cpu.
func (fw *Framework) cpuLock(cpu int) *sync.Mutex {
	mu, _ := fw.sched.LoadOrStore(cpu, new(sync.Mutex))
	return mu.(*sync.Mutex)
}
