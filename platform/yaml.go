// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"io"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/aclements/go-perfmux/events"
)

// descriptorFile is the YAML form of a custom descriptor:
//
//	name: my-pmu
//	counter_width: 48
//	counters:
//	  - {name: cycle, csr: 0xc00, host: cycles}
//	  - {name: instret, csr: 0xc02, host: instructions}
//	hardware:
//	  cycles: 0
//	  instructions: 1
//	cache:
//	  L1-dcache-load-misses: 1
//	interrupt: {line: 7, name: my-pmu-perf}
type descriptorFile struct {
	Name         string `yaml:"name"`
	CounterWidth int    `yaml:"counter_width"`
	NumCounters  int    `yaml:"num_counters"` // Defaults to len(Counters)
	MaxEvents    int    `yaml:"max_events"`   // Defaults to every hardware kind
	Counters     []struct {
		Name string `yaml:"name"`
		CSR  uint16 `yaml:"csr"`
		Host string `yaml:"host"`
	} `yaml:"counters"`
	Hardware  map[string]int `yaml:"hardware"`
	Cache     map[string]int `yaml:"cache"`
	Interrupt *struct {
		Line int    `yaml:"line"`
		Name string `yaml:"name"`
	} `yaml:"interrupt"`
}

// LoadDescriptor reads a custom descriptor in YAML form. Event names in the
// hardware and cache maps are anything [events.ParseEvent] accepts.
func LoadDescriptor(r io.Reader) (*Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading descriptor")
	}
	var f descriptorFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing descriptor")
	}
	if f.Name == "" {
		return nil, errors.New("descriptor has no name")
	}

	d := &Descriptor{
		Name:         f.Name,
		Variant:      VariantCustom,
		CounterWidth: f.CounterWidth,
		NumCounters:  f.NumCounters,
	}
	if d.NumCounters == 0 {
		d.NumCounters = len(f.Counters)
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for _, c := range f.Counters {
		if !names.Add(c.Name) {
			return nil, errors.Errorf("descriptor %s: duplicate counter %q", f.Name, c.Name)
		}
		d.Counters = append(d.Counters, CounterInfo{Name: c.Name, CSR: c.CSR, Host: c.Host})
	}

	maxEvents := f.MaxEvents
	if maxEvents < 0 {
		return nil, errors.Errorf("descriptor %s: max_events %d is negative", f.Name, maxEvents)
	}
	if maxEvents == 0 {
		maxEvents = events.NumHardwareKinds
	}
	hw := make(map[uint64]Code)
	for name, code := range f.Hardware {
		typ, config, err := parseAttr(name)
		if err != nil {
			return nil, errors.Wrapf(err, "descriptor %s", f.Name)
		}
		if typ != unix.PERF_TYPE_HARDWARE || config >= uint64(maxEvents) {
			return nil, errors.Errorf("descriptor %s: %q is not a hardware event below %d", f.Name, name, maxEvents)
		}
		hw[config] = Code(code)
	}
	d.HWEvents = newHWTable(maxEvents, hw)

	if len(f.Cache) > 0 {
		var entries []cacheEntry
		for name, code := range f.Cache {
			typ, config, err := parseAttr(name)
			if err != nil {
				return nil, errors.Wrapf(err, "descriptor %s", f.Name)
			}
			if typ != unix.PERF_TYPE_HW_CACHE {
				return nil, errors.Errorf("descriptor %s: %q is not a cache event", f.Name, name)
			}
			level, op, result := events.DecodeCache(config)
			entries = append(entries, cacheEntry{level, []events.CacheOp{op}, result, Code(code)})
		}
		d.CacheEvents = newCacheTable(entries...)
	}

	if f.Interrupt != nil {
		d.Interrupt = &Interrupt{Line: f.Interrupt.Line, Name: f.Interrupt.Name}
		if d.Interrupt.Name == "" {
			d.Interrupt.Name = f.Name + "-perf"
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDescriptorFile reads a custom descriptor from a YAML file.
func LoadDescriptorFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := LoadDescriptor(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return d, nil
}

func parseAttr(name string) (uint32, uint64, error) {
	ev, err := events.ParseEvent(name)
	if err != nil {
		return 0, 0, err
	}
	var attr unix.PerfEventAttr
	if err := ev.SetAttrs(&attr); err != nil {
		return 0, 0, err
	}
	return attr.Type, attr.Config, nil
}
