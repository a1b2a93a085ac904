// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat provides prometheus-style metrics (Val type) for
// instrumenting the fuzzer, plus a periodic sampler that persists the
// collected values into the workdir.
//
// Simple use:
//
//	statFoo := stat.New("metric name", "metric description")
//	statFoo.Add(1)
package stat

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Val is one named counter. Vals register themselves with the default
// prometheus registry so an embedding binary can expose them if it serves
// metrics; nothing in this package starts a server.
type Val struct {
	name string
	desc string
	val  atomic.Uint64
}

var (
	mu     sync.Mutex
	global = make(map[string]*Val)
)

func New(name, desc string) *Val {
	v := &Val{name: name, desc: desc}
	mu.Lock()
	defer mu.Unlock()
	if global[name] != nil {
		panic("duplicate stat " + name)
	}
	global[name] = v
	err := prometheus.DefaultRegisterer.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: promName(name),
		Help: desc,
	},
		func() float64 { return float64(v.Val()) },
	))
	if err != nil {
		// Distinct human names can mangle to the same prometheus name.
		panic("duplicate stat " + promName(name) + ": " + err.Error())
	}
	return v
}

func (v *Val) Add(val int) {
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	return int(v.val.Load())
}

func (v *Val) Name() string {
	return v.name
}

// Collect returns a stable snapshot of all registered values.
func Collect() map[string]int {
	mu.Lock()
	defer mu.Unlock()
	res := make(map[string]int, len(global))
	for name, v := range global {
		res[name] = v.Val()
	}
	return res
}

// Names returns the registered metric names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	var names []string
	for name := range global {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// promName mangles a human-readable metric name into the prometheus
// character set.
func promName(name string) string {
	res := []byte("healer_")
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			res = append(res, c)
		case c >= 'A' && c <= 'Z':
			res = append(res, c+'a'-'A')
		default:
			res = append(res, '_')
		}
	}
	return string(res)
}
