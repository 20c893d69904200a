// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/platform"
	"github.com/aclements/go-perfmux/sim"
)

func TestNewChecks(t *testing.T) {
	_, err := New(platform.Base, Options{})
	assert.Error(t, err)

	regs := sim.New(1, 2, 63)
	_, err = New(irqDesc(63), Options{Counters: regs})
	assert.Error(t, err, "interrupt without controller")

	bad := *platform.Base
	bad.CounterWidth = 0
	_, err = New(&bad, Options{Counters: regs})
	assert.Error(t, err)

	p, err := New(platform.Base, Options{Counters: regs, NumCPU: 3, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 3, p.NumCPU())
	assert.Same(t, platform.Base, p.Descriptor())
}

type fakeRegistry struct {
	name string
	typ  uint32
	p    *PMU
}

func (r *fakeRegistry) RegisterPMU(name string, typ uint32, p *PMU) error {
	r.name, r.typ, r.p = name, typ, p
	return nil
}

func TestRegister(t *testing.T) {
	f := newFixture(t, platform.Base, 1)
	var r fakeRegistry
	require.NoError(t, f.p.Register(&r))
	assert.Equal(t, Name, r.name)
	assert.Equal(t, uint32(unix.PERF_TYPE_RAW), r.typ)
	assert.Same(t, f.p, r.p)
}
