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
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dtFile(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

func TestDiscover(t *testing.T) {
	cpus := fstest.MapFS{
		"cpus/cpu@0/device_type":           dtFile("cpu\x00"),
		"cpus/cpu@0/compatible":            dtFile("eth,ariane\x00riscv\x00"),
		"soc/uart@10000000/compatible":     dtFile("ns16550a\x00"),
		"soc/uart@10000000/reg":            dtFile("\x00\x00\x00\x00"),
		"soc/plic@c000000/interrupt-cells": dtFile("\x00\x00\x00\x01"),
	}
	with := func(extra fstest.MapFS) fstest.MapFS {
		fsys := fstest.MapFS{}
		for k, v := range cpus {
			fsys[k] = v
		}
		for k, v := range extra {
			fsys[k] = v
		}
		return fsys
	}

	for _, tc := range []struct {
		name string
		fsys fstest.MapFS
		want *Descriptor
	}{
		{"empty", fstest.MapFS{}, Base},
		{"no pmu node", cpus, Base},
		{"base", with(fstest.MapFS{
			"soc/pmu/device_type": dtFile("pmu\x00"),
			"soc/pmu/compatible":  dtFile("riscv,base-pmu\x00"),
		}), Base},
		{"ariane second compatible", with(fstest.MapFS{
			"soc/pmu/device_type": dtFile("pmu\x00"),
			"soc/pmu/compatible":  dtFile("openhwgroup,cva6-pmu\x00eth,ariane-pmu\x00"),
		}), Ariane},
		{"unknown compatible", with(fstest.MapFS{
			"soc/pmu/device_type": dtFile("pmu\x00"),
			"soc/pmu/compatible":  dtFile("sifive,u74-pmu\x00"),
		}), Base},
		{"no compatible", with(fstest.MapFS{
			"soc/pmu/device_type": dtFile("pmu\x00"),
		}), Base},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Discover(tc.fsys)
			require.NoError(t, err)
			assert.Same(t, tc.want, d)
		})
	}
}

func TestDiscoverMissingTree(t *testing.T) {
	d, err := Discover(os.DirFS(filepath.Join(t.TempDir(), "does-not-exist")))
	require.NoError(t, err)
	assert.Same(t, Base, d)
}

func TestSplitStrings(t *testing.T) {
	assert.Equal(t, []string{"a,b", "c"}, splitStrings([]byte("a,b\x00c\x00")))
	assert.Equal(t, []string{"pmu"}, splitStrings([]byte("pmu\n")))
	assert.Nil(t, splitStrings([]byte("\x00")))
	assert.Equal(t, "x,y", strings.Join(splitStrings([]byte("x\x00\x00y")), ","))
}
