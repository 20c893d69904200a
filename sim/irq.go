// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package sim

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrBusy is returned by RequestIRQ for a line that is already bound or
// marked busy.
var ErrBusy = errors.New("interrupt line busy")

// IRQs is a simulated interrupt controller. It implements
// pmu.IRQController.
type IRQs struct {
	mu       sync.Mutex
	handlers map[int]func(cpu int) bool
	names    map[int]string
	busy     map[int]bool
	requests int
	frees    int
}

// NewIRQs returns a controller with no lines bound.
func NewIRQs() *IRQs {
	return &IRQs{
		handlers: make(map[int]func(int) bool),
		names:    make(map[int]string),
		busy:     make(map[int]bool),
	}
}

// SetBusy marks line as owned by someone else, so requests for it fail.
func (c *IRQs) SetBusy(line int, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy[line] = busy
}

func (c *IRQs) RequestIRQ(line int, name string, handler func(cpu int) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if c.busy[line] || c.handlers[line] != nil {
		return errors.Wrapf(ErrBusy, "irq %d", line)
	}
	c.handlers[line] = handler
	c.names[line] = name
	return nil
}

func (c *IRQs) FreeIRQ(line int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[line] == nil {
		panic(errors.Errorf("sim: free of unbound irq %d", line))
	}
	c.frees++
	delete(c.handlers, line)
	delete(c.names, line)
}

// Bound returns the name line is bound under, if any.
func (c *IRQs) Bound(line int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[line]
	return name, ok
}

// Requests returns the number of RequestIRQ calls, successful or not.
func (c *IRQs) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Frees returns the number of FreeIRQ calls.
func (c *IRQs) Frees() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}

// Fire delivers an interrupt on line to cpu. It reports whether a handler
// was bound and handled it.
func (c *IRQs) Fire(line, cpu int) bool {
	c.mu.Lock()
	h := c.handlers[line]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	return h(cpu)
}
