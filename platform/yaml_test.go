// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/events"
)

const customYAML = `
name: test-pmu
counter_width: 8
counters:
  - {name: cycle, csr: 0xc00, host: cycles}
  - {name: instret, csr: 0xc02, host: instructions}
  - {name: dmiss, csr: 0xc03}
hardware:
  cycles: 0
  instructions: 1
cache:
  L1-dcache-load-misses: 2
  L1-dcache-store-misses: 2
interrupt: {line: 7}
`

func TestLoadDescriptor(t *testing.T) {
	d, err := LoadDescriptor(strings.NewReader(customYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-pmu", d.Name)
	assert.Equal(t, VariantCustom, d.Variant)
	assert.Equal(t, 8, d.CounterWidth)
	assert.Equal(t, 3, d.NumCounters)
	assert.Len(t, d.HWEvents, events.NumHardwareKinds)
	require.NotNil(t, d.Interrupt)
	assert.Equal(t, Interrupt{Line: 7, Name: "test-pmu-perf"}, *d.Interrupt)

	c, ok := d.Counter(0)
	require.True(t, ok)
	assert.Equal(t, CounterInfo{"cycle", 0xc00, "cycles"}, c)
	_, ok = d.Counter(3)
	assert.False(t, ok)

	code, err := d.MapHardware(unix.PERF_COUNT_HW_INSTRUCTIONS)
	require.NoError(t, err)
	assert.Equal(t, Code(1), code)
	_, err = d.MapHardware(unix.PERF_COUNT_HW_REF_CPU_CYCLES)
	assert.ErrorIs(t, err, ErrNotSupported)

	code, err = d.MapCache(events.CacheConfig(events.CacheL1D, events.CacheOpWrite, events.CacheResultMiss))
	require.NoError(t, err)
	assert.Equal(t, Code(2), code)
	_, err = d.MapCache(events.CacheConfig(events.CacheL1D, events.CacheOpPrefetch, events.CacheResultMiss))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestLoadDescriptorErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"no name":        "counter_width: 8\ncounters: [{name: a}]\n",
		"duplicate":      "name: x\ncounter_width: 8\ncounters: [{name: a}, {name: a}]\n",
		"unknown field":  "name: x\ncounter_width: 8\nbogus: 1\ncounters: [{name: a}]\n",
		"bad width":      "name: x\ncounter_width: 80\ncounters: [{name: a}]\n",
		"no counters":    "name: x\ncounter_width: 8\n",
		"unknown event":  "name: x\ncounter_width: 8\ncounters: [{name: a}]\nhardware: {frobs: 0}\n",
		"cache as hw":    "name: x\ncounter_width: 8\ncounters: [{name: a}]\nhardware: {L1-dcache-loads: 0}\n",
		"hw as cache":    "name: x\ncounter_width: 8\ncounters: [{name: a}]\ncache: {cycles: 0}\n",
		"code too large": "name: x\ncounter_width: 8\ncounters: [{name: a}]\nhardware: {cycles: 1}\n",
		"negative kinds": "name: x\ncounter_width: 8\nmax_events: -1\ncounters: [{name: a}]\n",
		"kind too large": "name: x\ncounter_width: 8\nmax_events: 1\ncounters: [{name: a}, {name: b}]\nhardware: {instructions: 1}\n",
	} {
		_, err := LoadDescriptor(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadDescriptorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customYAML), 0o644))
	d, err := LoadDescriptorFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-pmu", d.Name)

	_, err = LoadDescriptorFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
