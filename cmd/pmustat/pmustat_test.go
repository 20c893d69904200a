// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-perfmux/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := run(t, "--platform", "ariane", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "riscv-ariane (16 counters, 63 bits)")
	assert.Contains(t, out, "0xb04")
	assert.Regexp(t, `branch-misses\s+mis-predict`, out)
	assert.Regexp(t, `L1-dcache-load-misses\s+l1-dcache-miss`, out)
	assert.NotContains(t, out, "bus-cycles")

	out, err = run(t, "--platform", "base", "list")
	require.NoError(t, err)
	assert.Regexp(t, `cpu-cycles\s+cycle`, out)
	assert.NotContains(t, out, "dcache")

	_, err = run(t, "--platform", "pdp-11", "list")
	assert.Error(t, err)
}

func TestListAuto(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "pmustat.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("devicetree: "+filepath.Join(dir, "none")+"\n"), 0o644))
	out, err := run(t, "--config", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "riscv-base")
}

func TestStat(t *testing.T) {
	out, err := run(t, "--platform", "base", "stat",
		"-e", "cycles,instructions,cycles",
		"--interval", "20ms", "--count", "2",
		"--metric", "IPC=instructions / cycles")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	header := strings.Fields(lines[0])
	assert.Equal(t, []string{"time", "cycles", "instructions", "IPC"}, header)
	for _, line := range lines[1:] {
		assert.Len(t, strings.Fields(line), 4, line)
	}
}

func TestStatErrors(t *testing.T) {
	_, err := run(t, "--platform", "base", "stat", "-e", "bus-cycles", "--count", "1")
	assert.Error(t, err)
	_, err = run(t, "--platform", "base", "stat", "-e", "nope", "--count", "1")
	assert.Error(t, err)
	_, err = run(t, "--platform", "base", "stat", "-e", "cycles", "--metric", "x=instructions", "--count", "1")
	assert.Error(t, err)
	_, err = run(t, "--platform", "base", "stat", "--backend", "fpga")
	assert.Error(t, err)
}

func TestUniqueEvents(t *testing.T) {
	names, set := uniqueEvents([]string{"cycles", " instructions", "", "cycles"})
	assert.Equal(t, []string{"cycles", "instructions"}, names)
	assert.True(t, set.Contains("cycles", "instructions"))
	assert.Equal(t, 2, set.Cardinality())
}

func TestDerivedMetrics(t *testing.T) {
	counted := mapset.NewSet("cycles", "instructions", "L1-dcache-load-misses")
	ms, err := compileMetrics([]config.Metric{
		{Name: "IPC", Expr: "instructions / cycles"},
		{Name: "MPKI", Expr: "ratio([L1-dcache-load-misses] * 1000, instructions)"},
		{Name: "peak", Expr: "max(cycles, instructions)"},
	}, counted)
	require.NoError(t, err)
	require.Len(t, ms, 3)

	values := map[string]any{"cycles": 200.0, "instructions": 100.0, "L1-dcache-load-misses": 3.0}
	v, err := ms[0].eval(values)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	v, err = ms[1].eval(values)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)
	v, err = ms[2].eval(values)
	require.NoError(t, err)
	assert.Equal(t, 200.0, v)

	values["instructions"] = 0.0
	v, err = ms[1].eval(values)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = compileMetrics([]config.Metric{{Name: "bad", Expr: "branches / cycles"}}, counted)
	assert.ErrorContains(t, err, "not counting branches")
	_, err = compileMetrics([]config.Metric{{Name: "dashed", Expr: "L1-dcache-load-misses / instructions"}}, counted)
	assert.ErrorContains(t, err, "[L1-dcache-loads]")
	_, err = compileMetrics([]config.Metric{{Name: "bad", Expr: "branches / cycles"}}, mapset.NewSet("cycles"))
	assert.NotContains(t, err.Error(), "brackets")
	_, err = compileMetrics([]config.Metric{{Name: "bad", Expr: "cycles /"}}, counted)
	assert.Error(t, err)

	cmp, err := compileMetrics([]config.Metric{{Name: "cmp", Expr: "cycles > instructions"}}, counted)
	require.NoError(t, err)
	v, err = cmp[0].eval(values)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}
