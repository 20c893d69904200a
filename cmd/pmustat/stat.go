// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aclements/go-perfmux/events"
	"github.com/aclements/go-perfmux/internal/config"
	"github.com/aclements/go-perfmux/metrics"
	"github.com/aclements/go-perfmux/perf"
	"github.com/aclements/go-perfmux/platform"
	"github.com/aclements/go-perfmux/pmu"
	"github.com/aclements/go-perfmux/sim"
)

const (
	flagEventsName   = "events"
	flagCPUName      = "cpu"
	flagIntervalName = "interval"
	flagCountName    = "count"
	flagMetricName   = "metric"
	flagListenName   = "listen"
	flagBackendName  = "backend"
)

type statFlags struct {
	events   []string
	cpu      int
	interval time.Duration
	count    int
	metrics  []string
	listen   string
	backend  string
}

func (f *statFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.events, flagEventsName, "e", nil, "comma-separated events to count")
	fs.IntVar(&f.cpu, flagCPUName, 0, "CPU to count on")
	fs.DurationVar(&f.interval, flagIntervalName, 0, "time between reports")
	fs.IntVar(&f.count, flagCountName, 0, "number of reports, 0 for no limit")
	fs.StringArrayVar(&f.metrics, flagMetricName, nil, "derived metric as name=expression (repeatable); write event names containing '-' in brackets, as in [L1-dcache-loads]")
	fs.StringVar(&f.listen, flagListenName, "", "serve Prometheus metrics on this address")
	fs.StringVar(&f.backend, flagBackendName, "", "counter backend: sim or host")
}

// apply overrides cfg with the flags that were set on the command line.
func (f *statFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case flagEventsName:
			cfg.Events = f.events
			if !fs.Changed(flagMetricName) {
				// The configured metrics are over the configured events.
				cfg.Metrics = nil
			}
		case flagCPUName:
			cfg.CPU = f.cpu
		case flagIntervalName:
			cfg.Interval = f.interval
		case flagCountName:
			cfg.Count = f.count
		case flagListenName:
			cfg.Listen = f.listen
		case flagBackendName:
			cfg.Backend = f.backend
		case flagMetricName:
			cfg.Metrics = nil
			for _, s := range f.metrics {
				m, err1 := config.ParseMetric(s)
				if err1 != nil && err == nil {
					err = err1
				}
				cfg.Metrics = append(cfg.Metrics, m)
			}
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func (a *app) newStatCmd() *cobra.Command {
	var f statFlags
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Count events on one CPU and report them every interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.apply(cmd.Flags(), a.cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.stat(ctx)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// uniqueEvents returns names in order with repeats dropped.
func uniqueEvents(names []string) ([]string, mapset.Set[string]) {
	set := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" && set.Add(name) {
			out = append(out, name)
		}
	}
	return out, set
}

func (a *app) stat(ctx context.Context) error {
	cfg := a.cfg
	desc, err := a.descriptor()
	if err != nil {
		return err
	}
	names, nameSet := uniqueEvents(cfg.Events)
	evs := make([]events.Event, len(names))
	for i, name := range names {
		if evs[i], err = events.ParseEvent(name); err != nil {
			return err
		}
	}
	derived, err := compileMetrics(cfg.Metrics, nameSet)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numCPU := max(runtime.NumCPU(), cfg.CPU+1)
	opts := pmu.Options{NumCPU: numCPU, Logger: a.log}
	if desc.Interrupt != nil {
		// Userspace can't take the counter interrupt, so it is simulated on
		// either backend.
		opts.IRQs = sim.NewIRQs()
	}
	switch cfg.Backend {
	case config.BackendSim:
		regs := sim.New(numCPU, desc.NumCounters, uint(desc.CounterWidth))
		go regs.Run(ctx, time.Millisecond, simRates(desc))
		opts.Counters = regs
	case config.BackendHost:
		regs := perf.NewHostRegisters(desc, perf.TargetCPU)
		defer regs.Close()
		opts.Counters = regs
	}

	p, err := pmu.New(desc, opts)
	if err != nil {
		return err
	}
	fw := perf.NewFramework(a.log)
	if err := p.Register(fw); err != nil {
		return err
	}

	if cfg.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(fw, a.log))
		go func() {
			if err := metrics.Serve(ctx, cfg.Listen, reg, a.log); err != nil {
				a.log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	c, err := perf.OpenCounter(fw, cfg.CPU, evs...)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Start(); err != nil {
		return err
	}
	a.log.WithFields(log.Fields{"platform": desc.Name, "cpu": cfg.CPU, "events": len(evs)}).Info("counting")

	return report(ctx, a.out, c, names, derived, cfg.Interval, cfg.Count)
}

// simRates gives each simulated counter a distinct rate, falling with the
// counter index, so derived metrics have something to show.
func simRates(desc *platform.Descriptor) map[int]uint64 {
	rates := make(map[int]uint64, desc.NumCounters)
	for idx := 0; idx < desc.NumCounters; idx++ {
		rates[idx] = uint64(1000 * (desc.NumCounters - idx))
	}
	return rates
}

// report prints the deltas of c's events every interval, count times or
// until ctx is done.
func report(ctx context.Context, w io.Writer, c *perf.Counter, names []string, derived []derivedMetric, interval time.Duration, count int) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "time\t%s\t", strings.Join(names, "\t"))
	for _, m := range derived {
		fmt.Fprintf(tw, "%s\t", m.name)
	}
	fmt.Fprintln(tw)

	prev := make([]perf.Count, len(names))
	cur := make([]perf.Count, len(names))
	if err := c.ReadGroup(prev); err != nil {
		return err
	}
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 0; count == 0 || n < count; n++ {
		select {
		case <-ctx.Done():
			return tw.Flush()
		case <-ticker.C:
		}
		if err := c.ReadGroup(cur); err != nil {
			return errors.Wrap(err, "reading counters")
		}
		values := make(map[string]any, len(names))
		fmt.Fprintf(tw, "%.3f\t", time.Since(start).Seconds())
		for i, name := range names {
			d := cur[i].RawValue - prev[i].RawValue
			values[name] = float64(d)
			fmt.Fprintf(tw, "%d\t", d)
		}
		for _, m := range derived {
			v, err := m.eval(values)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%.3f\t", v)
		}
		fmt.Fprintln(tw)
		// Flush each row, so output keeps up with the counting.
		if err := tw.Flush(); err != nil {
			return err
		}
		prev, cur = cur, prev
	}
	return tw.Flush()
}
