// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"bytes"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// The directory and fs.FS of the flattened device tree. These are
// variables so they can be stubbed by tests.
var (
	deviceTreeDir = "/proc/device-tree"
	deviceTreeFS  = os.DirFS(deviceTreeDir)
)

// errFound stops the device-tree walk early.
var errFound = errors.New("found")

// Discover selects a descriptor by finding the first device-tree node whose
// device_type is "pmu" and matching its compatible list. If there is no such
// node, or none of its compatible strings are known, it returns [Base].
//
// If fsys is nil, Discover reads the running system's device tree.
func Discover(fsys fs.FS) (*Descriptor, error) {
	if fsys == nil {
		fsys = deviceTreeFS
	}

	node, err := findNodeByType(fsys, "pmu")
	if err != nil {
		return nil, err
	}
	if node == "" {
		log.Debug("no pmu node in device tree, using base PMU")
		return Base, nil
	}

	compat, err := fs.ReadFile(fsys, path.Join(node, "compatible"))
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("node", node).Debug("pmu node has no compatible property, using base PMU")
		return Base, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path.Join(deviceTreeDir, node, "compatible"))
	}
	for _, c := range splitStrings(compat) {
		if d, ok := Lookup(c); ok {
			log.WithFields(log.Fields{"node": node, "compatible": c, "pmu": d.Name}).Info("selected PMU from device tree")
			return d, nil
		}
	}
	log.WithFields(log.Fields{"node": node, "compatible": strings.Join(splitStrings(compat), ",")}).
		Debug("no known compatible string, using base PMU")
	return Base, nil
}

// findNodeByType returns the path of the first node in fsys with the given
// device_type property, or "" if there is none.
func findNodeByType(fsys fs.FS, typ string) (string, error) {
	var found string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				// Treat a missing tree like an empty one. Most machines
				// don't have one.
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != "device_type" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if v := splitStrings(data); len(v) > 0 && v[0] == typ {
			found = path.Dir(p)
			return errFound
		}
		return nil
	})
	if err != nil && err != errFound {
		return "", errors.Wrapf(err, "searching device tree %s", deviceTreeDir)
	}
	return found, nil
}

// splitStrings splits a device-tree string-list property.
func splitStrings(data []byte) []string {
	var out []string
	for _, s := range bytes.Split(bytes.TrimRight(data, "\x00\n"), []byte{0}) {
		if len(s) > 0 {
			out = append(out, string(s))
		}
	}
	return out
}
