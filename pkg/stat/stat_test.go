// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVal(t *testing.T) {
	v := New("test val", "test description")
	assert.Equal(t, 0, v.Val())
	v.Add(1)
	v.Add(41)
	assert.Equal(t, 42, v.Val())
	assert.Equal(t, "test val", v.Name())
}

func TestValConcurrent(t *testing.T) {
	v := New("test val concurrent", "")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				v.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10000, v.Val())
}

func TestDuplicateName(t *testing.T) {
	New("test duplicate", "")
	assert.Panics(t, func() { New("test duplicate", "") })
}

func TestMangledNameClash(t *testing.T) {
	// Distinct human names that mangle to the same prometheus name must
	// not silently lose a gauge.
	New("test clash-prom", "")
	assert.Panics(t, func() { New("test clash prom", "") })
}

func TestCollect(t *testing.T) {
	v := New("test collect", "")
	v.Add(7)
	snap := Collect()
	assert.Equal(t, 7, snap["test collect"])
	assert.Contains(t, Names(), "test collect")
}

func TestPromName(t *testing.T) {
	assert.Equal(t, "healer_exec_total", promName("exec total"))
	assert.Equal(t, "healer_guest_boots", promName("Guest Boots"))
}

func TestSamplerPersist(t *testing.T) {
	v := New("test sampler", "")
	v.Add(3)
	dir := t.TempDir()
	shutdown := make(chan struct{})
	s := NewSampler(dir, time.Millisecond, 5, shutdown)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	// Let a few ticks land, then stop and check the persisted history.
	time.Sleep(50 * time.Millisecond)
	close(shutdown)
	<-done

	data, err := os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	var samples []map[string]int
	require.NoError(t, json.Unmarshal(data, &samples))
	require.NotEmpty(t, samples)
	assert.LessOrEqual(t, len(samples), 5, "history must stay bounded")
	assert.Equal(t, 3, samples[len(samples)-1]["test sampler"])
}

func TestSamplerNoSamples(t *testing.T) {
	dir := t.TempDir()
	shutdown := make(chan struct{})
	close(shutdown)
	s := NewSampler(dir, time.Hour, 5, shutdown)
	s.Run()
	_, err := os.Stat(filepath.Join(dir, "stats.json"))
	assert.True(t, os.IsNotExist(err), "nothing sampled, nothing persisted")
}
