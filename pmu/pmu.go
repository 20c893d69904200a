// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package pmu multiplexes generic performance events onto the fixed set of
// physical counters described by a [platform.Descriptor].
//
// A [PMU] owns one counter slot table per CPU and the process-wide
// reservation of the counter hardware. A host framework drives each [Event]
// through Init, Add, Start, Stop, Del, and Destroy, and reads it with Read.
// Physical counters are free-running, read-only, and may be narrower than 64
// bits. The PMU turns them into monotonic 64-bit counts by accumulating
// wrap-corrected deltas.
//
// Slot tables are per CPU and are not locked: all Add and Del calls for a
// given CPU must come from one goroutine at a time. Read, and the interrupt
// handler, may run concurrently with anything.
package pmu

import (
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/platform"
)

// Name is the name a PMU registers under.
const Name = "cpu"

var (
	// ErrHardwareUnavailable means the counter hardware could not be
	// reserved, because its interrupt could not be bound. It may be retried.
	ErrHardwareUnavailable = errors.New("PMC hardware not available")

	// ErrNoSpace means every physical counter the event could use on its
	// CPU is in use.
	ErrNoSpace = errors.New("no space left on PMU")

	// These are returned from Init when the request cannot be mapped.
	ErrInvalidArgument = platform.ErrInvalidArgument
	ErrNotSupported    = platform.ErrNotSupported
	ErrNoCapability    = platform.ErrNoCapability
)

// Counters reads the raw physical counter registers.
type Counters interface {
	// ReadCounter returns the current value of counter idx on the given CPU.
	// Only the low CounterWidth bits are significant.
	ReadCounter(cpu, idx int) (uint64, error)
}

// Options configure a [PMU].
type Options struct {
	// Counters is the source of raw counter values. It is required.
	Counters Counters

	// IRQs binds the counter interrupt. It is required if the descriptor
	// has an interrupt.
	IRQs IRQController

	// NumCPU is the number of CPUs. It defaults to runtime.NumCPU().
	NumCPU int

	// Logger defaults to the logrus standard logger.
	Logger log.FieldLogger
}

// A PMU maps events onto the counters of one platform descriptor.
type PMU struct {
	desc *platform.Descriptor
	regs Counters
	irqs IRQController
	log  log.FieldLogger
	mask uint64

	cpus []cpuSlots

	res reservation
}

// New returns a PMU for desc.
func New(desc *platform.Descriptor, opts Options) (*PMU, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opts.Counters == nil {
		return nil, errors.New("pmu: no counter source")
	}
	if desc.Interrupt != nil && opts.IRQs == nil {
		return nil, errors.Errorf("pmu: %s has interrupt %d but no interrupt controller", desc.Name, desc.Interrupt.Line)
	}
	n := opts.NumCPU
	if n <= 0 {
		n = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	p := &PMU{
		desc: desc,
		regs: opts.Counters,
		irqs: opts.IRQs,
		log:  logger.WithField("pmu", desc.Name),
		mask: desc.CounterMask(),
		cpus: make([]cpuSlots, n),
	}
	for i := range p.cpus {
		p.cpus[i].slots = make([]slot, desc.NumCounters)
	}
	return p, nil
}

// Descriptor returns the platform descriptor p was built from.
func (p *PMU) Descriptor() *platform.Descriptor {
	return p.desc
}

// NumCPU returns the number of CPUs p has slot tables for.
func (p *PMU) NumCPU() int {
	return len(p.cpus)
}

// A Registry is the host framework's table of PMUs.
type Registry interface {
	RegisterPMU(name string, typ uint32, p *PMU) error
}

// Register publishes p to the host framework under [Name]. Its declared
// primary type is PERF_TYPE_RAW, which makes the framework offer it every
// event type. p itself only accepts hardware and cache events.
func (p *PMU) Register(r Registry) error {
	if err := r.RegisterPMU(Name, unix.PERF_TYPE_RAW, p); err != nil {
		return errors.Wrapf(err, "registering %s", p.desc.Name)
	}
	p.log.WithFields(log.Fields{
		"counters": p.desc.NumCounters,
		"width":    p.desc.CounterWidth,
		"cpus":     len(p.cpus),
	}).Info("registered PMU")
	return nil
}
