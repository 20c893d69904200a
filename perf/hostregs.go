// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"bytes"
	"encoding/binary"
	"os"
	"strconv"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/aclements/go-perfmux/events"
	"github.com/aclements/go-perfmux/platform"
)

// Target specifies what threads and CPUs [HostRegisters] count.
type Target interface {
	pidCPU(cpu int) (pid, hostCPU int)
}

type targetCPU struct{}

func (targetCPU) pidCPU(cpu int) (int, int) { return -1, cpu }

type targetThisThread struct{}

func (targetThisThread) pidCPU(int) (int, int) { return 0, -1 }

var (
	// TargetCPU counts everything running on each CPU. This usually needs
	// privileges.
	TargetCPU Target = targetCPU{}

	// TargetThisThread counts the calling OS thread wherever it runs,
	// whatever CPU it is asked for. Callers should use
	// [runtime.LockOSThread].
	TargetThisThread Target = targetThisThread{}
)

type hostKey struct{ cpu, idx int }

// HostRegisters implements [pmu.Counters] with the host's own performance
// counters. Each physical counter of a descriptor is stood in for by the
// host event named in its [platform.CounterInfo]. Host counters are opened
// on first read, count freely from then on, and are truncated to the
// descriptor's counter width.
type HostRegisters struct {
	desc   *platform.Descriptor
	target Target
	mask   uint64
	fds    *onceMap[hostKey, *os.File]
}

// NewHostRegisters returns registers for desc. Nothing is opened yet.
func NewHostRegisters(desc *platform.Descriptor, target Target) *HostRegisters {
	h := &HostRegisters{desc: desc, target: target, mask: desc.CounterMask()}
	h.fds = newOnceMap(h.open)
	return h
}

func (h *HostRegisters) open(k hostKey) (*os.File, error) {
	info, ok := h.desc.Counter(k.idx)
	if !ok || info.Host == "" {
		return nil, errors.Errorf("%s: counter %d has no host stand-in", h.desc.Name, k.idx)
	}
	ev, err := events.ParseEvent(info.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "%s counter %s", h.desc.Name, info.Name)
	}

	attr := unix.PerfEventAttr{}
	attr.Size = uint32(unsafe.Sizeof(attr))
	if err := ev.SetAttrs(&attr); err != nil {
		return nil, err
	}
	pid, cpu := h.target.pidCPU(k.cpu)
	fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		if errors.Is(err, syscall.EACCES) {
			const path = "/proc/sys/kernel/perf_event_paranoid"
			data, err2 := os.ReadFile(path)
			data = bytes.TrimSpace(data)
			if val, err3 := strconv.Atoi(string(data)); err2 != nil || err3 != nil || val > 0 {
				// We can't read it, or it's set to > 0.
				err = errors.Wrapf(err, "consider: echo 0 | sudo tee %s", path)
			}
		}
		return nil, errors.Wrapf(err, "opening host %s for counter %s", info.Host, info.Name)
	}
	return os.NewFile(uintptr(fd), "<perf-event "+info.Host+">"), nil
}

// ReadCounter returns the host count standing in for counter idx on cpu.
func (h *HostRegisters) ReadCounter(cpu, idx int) (uint64, error) {
	f, err := h.fds.get(hostKey{cpu, idx})
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if _, err := f.Read(buf[:]); err != nil {
		return 0, errors.Wrapf(err, "reading counter %d on cpu %d", idx, cpu)
	}
	return binary.NativeEndian.Uint64(buf[:]) & h.mask, nil
}

// Close closes every host counter opened so far.
func (h *HostRegisters) Close() error {
	var err error
	h.fds.drain(func(_ hostKey, f *os.File) {
		err = multierr.Append(err, f.Close())
	})
	return err
}
