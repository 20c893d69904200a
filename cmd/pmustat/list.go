// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aclements/go-perfmux/events"
	"github.com/aclements/go-perfmux/platform"
)

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the counters and events of the selected platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.descriptor()
			if err != nil {
				return err
			}
			return listDescriptor(a.out, d)
		},
	}
}

func listDescriptor(w io.Writer, d *platform.Descriptor) error {
	fmt.Fprintf(w, "%s\n", d)
	if d.Interrupt != nil {
		fmt.Fprintf(w, "interrupt %d (%s)\n", d.Interrupt.Line, d.Interrupt.Name)
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "\nCOUNTER\tNAME\tCSR\tHOST\n")
	for idx := 0; idx < d.NumCounters; idx++ {
		info, ok := d.Counter(idx)
		if !ok {
			fmt.Fprintf(tw, "%d\t-\t-\t-\n", idx)
			continue
		}
		host := info.Host
		if host == "" {
			host = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%#x\t%s\n", idx, info.Name, info.CSR, host)
	}

	fmt.Fprintf(tw, "\nEVENT\tCOUNTER\n")
	for kind, code := range d.HWEvents {
		if code != platform.Unsupported {
			fmt.Fprintf(tw, "%s\t%s\n", events.HardwareName(uint64(kind)), counterName(d, code))
		}
	}
	if t := d.CacheEvents; t != nil {
		for level := range t {
			for op := range t[level] {
				for result, code := range t[level][op] {
					if code == platform.Unsupported {
						continue
					}
					ev := events.Cache(events.CacheLevel(level), events.CacheOp(op), events.CacheResult(result))
					fmt.Fprintf(tw, "%s\t%s\n", ev, counterName(d, code))
				}
			}
		}
	}
	return tw.Flush()
}

func counterName(d *platform.Descriptor, code platform.Code) string {
	if info, ok := d.Counter(int(code)); ok {
		return info.Name
	}
	return fmt.Sprint(int(code))
}
