// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-perfmux/events"
	"github.com/aclements/go-perfmux/perf"
	"github.com/aclements/go-perfmux/platform"
	"github.com/aclements/go-perfmux/pmu"
	"github.com/aclements/go-perfmux/sim"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T) (*perf.Framework, *sim.Registers) {
	t.Helper()
	regs := sim.New(2, platform.Base.NumCounters, 63)
	p, err := pmu.New(platform.Base, pmu.Options{Counters: regs, NumCPU: 2, Logger: quietLogger()})
	require.NoError(t, err)
	fw := perf.NewFramework(quietLogger())
	require.NoError(t, p.Register(fw))
	return fw, regs
}

func TestCollector(t *testing.T) {
	fw, regs := setup(t)
	c, err := perf.OpenCounter(fw, 1, events.EventCPUCycles, events.EventInstructions)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start())
	regs.Advance(1, 0, 1000)
	regs.Advance(1, 1, 250)

	col := NewCollector(fw, quietLogger())
	const want = `
# HELP pmu_active_events Number of initialized events not yet destroyed.
# TYPE pmu_active_events gauge
pmu_active_events{pmu="cpu"} 2
# HELP pmu_hardware_reserved Whether the PMU's counter hardware is reserved (1) or not (0).
# TYPE pmu_hardware_reserved gauge
pmu_hardware_reserved{pmu="cpu"} 1
# HELP pmu_reservation_acquires_total Total number of times the counter hardware was reserved.
# TYPE pmu_reservation_acquires_total counter
pmu_reservation_acquires_total{pmu="cpu"} 1
# HELP pmu_counter_slots_used Number of physical counters in use on a CPU.
# TYPE pmu_counter_slots_used gauge
pmu_counter_slots_used{cpu="0",pmu="cpu"} 0
pmu_counter_slots_used{cpu="1",pmu="cpu"} 2
# HELP pmu_event_count Logical count of an open event.
# TYPE pmu_event_count counter
pmu_event_count{cpu="1",event="cpu-cycles"} 1000
pmu_event_count{cpu="1",event="instructions"} 250
`
	err = testutil.CollectAndCompare(col, strings.NewReader(want),
		"pmu_active_events", "pmu_hardware_reserved", "pmu_reservation_acquires_total",
		"pmu_counter_slots_used", "pmu_event_count")
	assert.NoError(t, err)

	require.NoError(t, c.Close())
	const after = `
# HELP pmu_active_events Number of initialized events not yet destroyed.
# TYPE pmu_active_events gauge
pmu_active_events{pmu="cpu"} 0
# HELP pmu_reservation_releases_total Total number of times the counter hardware was released.
# TYPE pmu_reservation_releases_total counter
pmu_reservation_releases_total{pmu="cpu"} 1
`
	err = testutil.CollectAndCompare(col, strings.NewReader(after),
		"pmu_active_events", "pmu_reservation_releases_total", "pmu_event_count")
	assert.NoError(t, err)
}

func TestCollectorLint(t *testing.T) {
	fw, _ := setup(t)
	problems, err := testutil.CollectAndLint(NewCollector(fw, quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestServe(t *testing.T) {
	fw, _ := setup(t)
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(fw, quietLogger()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, addr, reg, quietLogger()) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, string(body), `pmu_active_events{pmu="cpu"} 0`)

	cancel()
	assert.NoError(t, <-errc)
}
