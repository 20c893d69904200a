// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/events"
	"github.com/aclements/go-perfmux/pmu"
)

// A Counter reports the number of times an [events.Event] or group of Events
// occurred on one CPU.
type Counter struct {
	fw  *Framework
	cpu int
	evs []events.Event

	mu      sync.Mutex
	owners  []*pmu.PMU
	pevs    []*pmu.Event
	running bool
	started time.Time
	enabled time.Duration
	closed  bool
}

// OpenCounter returns a new [Counter] that counts the given [events.Event] or
// group of Events on cpu. Callers are expected to call [Counter.Close] when
// done with this Counter.
//
// If multiple events are given, they are opened as a group, which means they
// are scheduled onto the hardware all together or not at all.
//
// The counter is initially not running. Call [Counter.Start] to start it.
func OpenCounter(fw *Framework, cpu int, evs ...events.Event) (*Counter, error) {
	if len(evs) == 0 {
		return nil, errors.New("no events")
	}
	c := &Counter{fw: fw, cpu: cpu, evs: evs}
	for _, event := range evs {
		attr := unix.PerfEventAttr{}
		attr.Size = uint32(unsafe.Sizeof(attr))
		if err := event.SetAttrs(&attr); err != nil {
			c.destroy()
			return nil, err
		}
		p, ev, err := fw.open(&attr, cpu)
		if err != nil {
			c.destroy()
			return nil, errors.Wrapf(err, "opening %s", event)
		}
		c.owners = append(c.owners, p)
		c.pevs = append(c.pevs, ev)
	}
	fw.track(c)
	return c, nil
}

func (c *Counter) destroy() {
	for i, ev := range c.pevs {
		c.owners[i].Destroy(ev)
	}
	c.owners, c.pevs = nil, nil
}

// CPU returns the CPU c counts on.
func (c *Counter) CPU() int {
	return c.cpu
}

// Events returns the events c counts, in group order.
func (c *Counter) Events() []events.Event {
	return c.evs
}

// Start the counter. If the group can't be scheduled, for example because
// its counters are in use, Start returns the error and the counter stays
// stopped.
func (c *Counter) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("counter is closed")
	}
	if c.running {
		return nil
	}
	sched := c.fw.cpuLock(c.cpu)
	sched.Lock()
	defer sched.Unlock()
	for i, ev := range c.pevs {
		if err := c.owners[i].Add(ev, pmu.FlagStart); err != nil {
			for j := i - 1; j >= 0; j-- {
				err = multierr.Append(err, c.owners[j].Del(c.pevs[j]))
			}
			return errors.Wrapf(err, "scheduling %s", c.evs[i])
		}
	}
	c.running = true
	c.started = time.Now()
	return nil
}

// Stop the counter, folding in the final counts.
func (c *Counter) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Counter) stopLocked() error {
	if !c.running {
		return nil
	}
	sched := c.fw.cpuLock(c.cpu)
	sched.Lock()
	defer sched.Unlock()
	var err error
	for i, ev := range c.pevs {
		err = multierr.Append(err, c.owners[i].Del(ev))
	}
	c.running = false
	c.enabled += time.Since(c.started)
	return err
}

// Close stops the counter and releases its events.
func (c *Counter) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	err := c.stopLocked()
	c.destroy()
	c.closed = true
	c.fw.untrack(c)
	return err
}

// Count is the value of a Counter.
type Count struct {
	RawValue uint64 // The number of events while this counter was running.

	// Events are never rotated off a counter, so TimeRunning always equals
	// TimeEnabled. They are reported so Value scales like a host counter.

	TimeEnabled uint64 // Total time in nanoseconds the Counter was started.
	TimeRunning uint64 // Total time in nanoseconds the Counter was counting.
}

// Value returns the measured value of Count, scaled to account for time the
// counter was scheduled.
func (c Count) Value() float64 {
	raw := float64(c.RawValue)
	if c.TimeEnabled == c.TimeRunning {
		return raw
	}
	if c.TimeRunning == 0 {
		// Avoid divide by zero.
		return 0
	}
	return raw * (float64(c.TimeEnabled) / float64(c.TimeRunning))
}

// ReadOne returns the current value of the first event in c. For counters that
// only have a single Event, this is more ergonomic than [Counter.ReadGroup].
func (c *Counter) ReadOne() (Count, error) {
	var cs [1]Count
	if err := c.ReadGroup(cs[:]); err != nil {
		return Count{}, err
	}
	return cs[0], nil
}

// ReadGroup returns the current value of all events in c.
func (c *Counter) ReadGroup(cs []Count) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("counter is closed")
	}

	enabled := c.enabled
	if c.running {
		enabled += time.Since(c.started)
	}
	var err error
	for i := 0; i < len(cs) && i < len(c.pevs); i++ {
		n, err1 := c.owners[i].Read(c.pevs[i])
		err = multierr.Append(err, err1)
		cs[i] = Count{RawValue: n, TimeEnabled: uint64(enabled), TimeRunning: uint64(enabled)}
	}
	return err
}
