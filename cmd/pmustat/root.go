// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aclements/go-perfmux/internal/config"
	"github.com/aclements/go-perfmux/platform"
)

const (
	flagConfigName   = "config"
	flagDebugName    = "debug"
	flagPlatformName = "platform"
)

// app is the state shared by pmustat's commands.
type app struct {
	out io.Writer
	log *log.Logger

	flagConfig   string
	flagDebug    bool
	flagPlatform string

	cfg *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, log: log.New()}
	a.log.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:               "pmustat",
		Short:             "Count hardware events through a multiplexed PMU",
		SilenceUsage:      true,
		PersistentPreRunE: a.initialize,
	}
	root.SetOut(out)
	root.CompletionOptions.HiddenDefaultCmd = true
	root.PersistentFlags().StringVar(&a.flagConfig, flagConfigName, "", "configuration file")
	root.PersistentFlags().BoolVar(&a.flagDebug, flagDebugName, false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.flagPlatform, flagPlatformName, "", "platform variant, compatible string, descriptor file, or \"auto\"")

	root.AddCommand(a.newListCmd())
	root.AddCommand(a.newStatCmd())
	return root
}

func (a *app) initialize(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if a.flagConfig != "" {
		var err error
		if cfg, err = config.Load(a.flagConfig); err != nil {
			return err
		}
	}
	if a.flagPlatform != "" {
		cfg.Platform = a.flagPlatform
	}
	a.cfg = cfg

	a.log.SetLevel(cfg.Level())
	if a.flagDebug {
		a.log.SetLevel(log.DebugLevel)
	}
	a.log.WithField("config", a.flagConfig).Debug("initialized")
	return nil
}

// descriptor returns the platform descriptor the configuration selects.
func (a *app) descriptor() (*platform.Descriptor, error) {
	p := a.cfg.Platform
	switch {
	case p == config.PlatformAuto:
		return platform.Discover(os.DirFS(a.cfg.DeviceTree))
	case strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml"):
		return platform.LoadDescriptorFile(p)
	}
	d, err := platform.Select(p)
	if err != nil {
		return nil, errors.Wrap(err, "selecting platform")
	}
	return d, nil
}
