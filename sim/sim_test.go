// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistersWrap(t *testing.T) {
	r := New(1, 2, 8)
	r.Set(0, 0, 250)
	r.Advance(0, 0, 16)
	assert.Equal(t, uint64(10), r.Load(0, 0))

	r.Set(0, 1, 0x1ff)
	assert.Equal(t, uint64(0xff), r.Load(0, 1))
}

func TestRegistersFullWidth(t *testing.T) {
	r := New(1, 1, 64)
	r.Set(0, 0, ^uint64(0))
	r.Advance(0, 0, 2)
	assert.Equal(t, uint64(1), r.Load(0, 0))
}

func TestReadCounterRange(t *testing.T) {
	r := New(2, 3, 32)
	r.Set(1, 2, 42)
	v, err := r.ReadCounter(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = r.ReadCounter(2, 0)
	assert.Error(t, err)
	_, err = r.ReadCounter(0, 3)
	assert.Error(t, err)
	assert.Panics(t, func() { r.Advance(0, -1, 1) })
}

func TestConcurrentAdvance(t *testing.T) {
	r := New(1, 1, 63)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Advance(0, 0, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), r.Load(0, 0))
}

func TestRun(t *testing.T) {
	r := New(2, 2, 63)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond, map[int]uint64{0: 10, 5: 1})
		close(done)
	}()
	require.Eventually(t, func() bool { return r.Load(1, 0) >= 30 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, r.Load(0, 1))
	assert.Zero(t, r.Load(0, 0)%10)
}

func TestIRQs(t *testing.T) {
	c := NewIRQs()
	var got []int
	require.NoError(t, c.RequestIRQ(7, "pmu", func(cpu int) bool {
		got = append(got, cpu)
		return true
	}))
	name, ok := c.Bound(7)
	assert.True(t, ok)
	assert.Equal(t, "pmu", name)

	err := c.RequestIRQ(7, "other", func(int) bool { return false })
	assert.True(t, errors.Is(err, ErrBusy))

	assert.True(t, c.Fire(7, 3))
	assert.False(t, c.Fire(8, 3))
	assert.Equal(t, []int{3}, got)

	c.FreeIRQ(7)
	assert.False(t, c.Fire(7, 0))
	assert.Equal(t, 2, c.Requests())
	assert.Equal(t, 1, c.Frees())
	assert.Panics(t, func() { c.FreeIRQ(7) })

	c.SetBusy(9, true)
	assert.Error(t, c.RequestIRQ(9, "pmu", func(int) bool { return true }))
	c.SetBusy(9, false)
	assert.NoError(t, c.RequestIRQ(9, "pmu", func(int) bool { return true }))
}
