// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import "sync"

// onceMap lazily creates one value per key. Concurrent gets of a missing key
// create it once, and a failed creation is remembered.
type onceMap[K comparable, V any] struct {
	m    sync.Map // K -> *onceEntry[V]
	make func(K) (V, error)
}

type onceEntry[V any] struct {
	once sync.Once
	val  V
	err  error
}

func newOnceMap[K comparable, V any](make func(K) (V, error)) *onceMap[K, V] {
	return &onceMap[K, V]{make: make}
}

func (m *onceMap[K, V]) get(key K) (V, error) {
	entX, ok := m.m.Load(key)
	if !ok {
		entX, _ = m.m.LoadOrStore(key, new(onceEntry[V]))
	}
	ent := entX.(*onceEntry[V])
	ent.once.Do(func() {
		ent.val, ent.err = m.make(key)
	})
	return ent.val, ent.err
}

// drain removes every entry and calls f with each value that was created
// successfully.
func (m *onceMap[K, V]) drain(f func(K, V)) {
	m.m.Range(func(k, v any) bool {
		m.m.Delete(k)
		ent := v.(*onceEntry[V])
		// Wait out a creation in progress.
		ent.once.Do(func() {})
		if ent.err == nil {
			f(k.(K), ent.val)
		}
		return true
	})
}
