// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Pmustat counts hardware events through a multiplexed PMU, on simulated
// registers or on the host's own counters.
//
// Usage:
//
//	pmustat list [--platform p]
//	pmustat stat [-e events] [--cpu n] [--interval d] [--count k] [--metric name=expr] [--listen addr]
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
