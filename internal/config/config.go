// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads pmustat's configuration file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Backends.
const (
	BackendSim  = "sim"  // Simulated registers
	BackendHost = "host" // The host's perf_event_open counters
)

// PlatformAuto selects the platform by device-tree discovery.
const PlatformAuto = "auto"

// A Metric is an expression over event counts, named for display.
type Metric struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Config is the contents of a configuration file.
type Config struct {
	// Platform is a variant name, a device-tree compatible string,
	// "auto", or the path of a YAML descriptor file.
	Platform   string `yaml:"platform"`
	DeviceTree string `yaml:"devicetree"`

	Backend string   `yaml:"backend"`
	CPU     int      `yaml:"cpu"`
	Events  []string `yaml:"events"`
	Metrics []Metric `yaml:"metrics"`

	Interval time.Duration `yaml:"interval"`
	Count    int           `yaml:"count"` // Number of intervals, 0 for no limit

	Listen   string `yaml:"listen"` // Address to serve metrics on, if any
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	return &Config{
		Platform:   PlatformAuto,
		DeviceTree: "/proc/device-tree",
		Backend:    BackendSim,
		Events:     []string{"cycles", "instructions"},
		Metrics:    []Metric{{Name: "IPC", Expr: "instructions / cycles"}},
		Interval:   time.Second,
		LogLevel:   "info",
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Validate checks c for values that can't be used.
func (c *Config) Validate() error {
	if c.Platform == "" {
		return errors.New("platform is empty")
	}
	switch c.Backend {
	case BackendSim, BackendHost:
	default:
		return errors.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSim, BackendHost)
	}
	if c.CPU < 0 {
		return errors.Errorf("bad cpu %d", c.CPU)
	}
	if len(c.Events) == 0 {
		return errors.New("no events")
	}
	if c.Interval <= 0 {
		return errors.Errorf("interval %v must be positive", c.Interval)
	}
	if c.Count < 0 {
		return errors.Errorf("bad count %d", c.Count)
	}
	seen := make(map[string]bool)
	for _, m := range c.Metrics {
		if m.Name == "" || strings.TrimSpace(m.Expr) == "" {
			return errors.Errorf("metric %q needs a name and an expression", m.Name)
		}
		if seen[m.Name] {
			return errors.Errorf("duplicate metric %q", m.Name)
		}
		seen[m.Name] = true
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the logrus level named by LogLevel.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// ParseMetric parses a "name=expr" flag value.
func ParseMetric(s string) (Metric, error) {
	name, expr, ok := strings.Cut(s, "=")
	name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
	if !ok || name == "" || expr == "" {
		return Metric{}, errors.Errorf("metric %q: want name=expression", s)
	}
	return Metric{Name: name, Expr: expr}, nil
}
