// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package metrics exports the state of the PMUs registered with a
// [perf.Framework] as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/aclements/go-perfmux/perf"
)

// Collector implements prometheus.Collector for a framework's PMUs and open
// counters. Everything is read at scrape time.
type Collector struct {
	fw  *perf.Framework
	log log.FieldLogger

	activeEventsDesc *prometheus.Desc
	reservedDesc     *prometheus.Desc
	acquiresDesc     *prometheus.Desc
	releasesDesc     *prometheus.Desc
	slotsUsedDesc    *prometheus.Desc
	eventCountDesc   *prometheus.Desc
}

// NewCollector returns a collector for fw.
func NewCollector(fw *perf.Framework, logger log.FieldLogger) *Collector {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Collector{
		fw:  fw,
		log: logger.WithField("component", "metrics"),

		activeEventsDesc: prometheus.NewDesc(
			"pmu_active_events",
			"Number of initialized events not yet destroyed.",
			[]string{"pmu"}, nil,
		),
		reservedDesc: prometheus.NewDesc(
			"pmu_hardware_reserved",
			"Whether the PMU's counter hardware is reserved (1) or not (0).",
			[]string{"pmu"}, nil,
		),
		acquiresDesc: prometheus.NewDesc(
			"pmu_reservation_acquires_total",
			"Total number of times the counter hardware was reserved.",
			[]string{"pmu"}, nil,
		),
		releasesDesc: prometheus.NewDesc(
			"pmu_reservation_releases_total",
			"Total number of times the counter hardware was released.",
			[]string{"pmu"}, nil,
		),
		slotsUsedDesc: prometheus.NewDesc(
			"pmu_counter_slots_used",
			"Number of physical counters in use on a CPU.",
			[]string{"pmu", "cpu"}, nil,
		),
		eventCountDesc: prometheus.NewDesc(
			"pmu_event_count",
			"Logical count of an open event.",
			[]string{"event", "cpu"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeEventsDesc
	ch <- c.reservedDesc
	ch <- c.acquiresDesc
	ch <- c.releasesDesc
	ch <- c.slotsUsedDesc
	ch <- c.eventCountDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.fw.PMUs() {
		p := r.PMU
		ch <- prometheus.MustNewConstMetric(c.activeEventsDesc, prometheus.GaugeValue, float64(p.ActiveEvents()), r.Name)
		reserved := 0.0
		if p.Reserved() {
			reserved = 1
		}
		ch <- prometheus.MustNewConstMetric(c.reservedDesc, prometheus.GaugeValue, reserved, r.Name)
		acq, rel := p.ReservationStats()
		ch <- prometheus.MustNewConstMetric(c.acquiresDesc, prometheus.CounterValue, float64(acq), r.Name)
		ch <- prometheus.MustNewConstMetric(c.releasesDesc, prometheus.CounterValue, float64(rel), r.Name)
		for cpu := 0; cpu < p.NumCPU(); cpu++ {
			ch <- prometheus.MustNewConstMetric(c.slotsUsedDesc, prometheus.GaugeValue, float64(p.SlotsUsed(cpu)), r.Name, strconv.Itoa(cpu))
		}
	}

	// Counts are summed per event name and CPU, since two counters may
	// count the same event.
	type key struct {
		event string
		cpu   int
	}
	sums := make(map[key]uint64)
	var order []key
	for _, ctr := range c.fw.Counters() {
		evs := ctr.Events()
		counts := make([]perf.Count, len(evs))
		if err := ctr.ReadGroup(counts); err != nil {
			c.log.WithError(err).Warn("reading counter for scrape")
			continue
		}
		for i, ev := range evs {
			k := key{ev.String(), ctr.CPU()}
			if _, ok := sums[k]; !ok {
				order = append(order, k)
			}
			sums[k] += counts[i].RawValue
		}
	}
	for _, k := range order {
		ch <- prometheus.MustNewConstMetric(c.eventCountDesc, prometheus.CounterValue, float64(sums[k]), k.event, strconv.Itoa(k.cpu))
	}
}

// Serve serves the metrics gathered by reg on addr at /metrics until ctx is
// done.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, logger log.FieldLogger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><head><title>pmustat</title></head><body><a href="/metrics">Metrics</a></body></html>`))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down metrics server")
	}
	return nil
}
