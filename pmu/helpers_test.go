// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/platform"
	"github.com/aclements/go-perfmux/sim"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// irqDesc is a small descriptor with an interrupt line and narrow counters.
func irqDesc(width int) *platform.Descriptor {
	hw := make([]platform.Code, unix.PERF_COUNT_HW_BUS_CYCLES+1)
	for i := range hw {
		hw[i] = platform.Unsupported
	}
	hw[unix.PERF_COUNT_HW_CPU_CYCLES] = 0
	hw[unix.PERF_COUNT_HW_INSTRUCTIONS] = 1
	return &platform.Descriptor{
		Name:         "test-irq",
		Variant:      platform.VariantCustom,
		CounterWidth: width,
		NumCounters:  2,
		HWEvents:     hw,
		Interrupt:    &platform.Interrupt{Line: 5, Name: "test-irq-perf"},
	}
}

type fixture struct {
	p    *PMU
	regs *sim.Registers
	irqs *sim.IRQs
}

func newFixture(t *testing.T, desc *platform.Descriptor, numCPU int) *fixture {
	t.Helper()
	regs := sim.New(numCPU, desc.NumCounters, uint(desc.CounterWidth))
	irqs := sim.NewIRQs()
	p, err := New(desc, Options{Counters: regs, IRQs: irqs, NumCPU: numCPU, Logger: quietLogger()})
	require.NoError(t, err)
	return &fixture{p, regs, irqs}
}

func hwAttr(kind uint64) *unix.PerfEventAttr {
	return &unix.PerfEventAttr{Type: unix.PERF_TYPE_HARDWARE, Config: kind}
}

func cycles() *unix.PerfEventAttr {
	return hwAttr(unix.PERF_COUNT_HW_CPU_CYCLES)
}

func instructions() *unix.PerfEventAttr {
	return hwAttr(unix.PERF_COUNT_HW_INSTRUCTIONS)
}
