// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/healer-fuzz/healer/pkg/log"
	"github.com/healer-fuzz/healer/pkg/osutil"
)

// Sampler periodically snapshots all registered values and keeps a bounded
// history. On shutdown the history is persisted as stats.json in the workdir.
type Sampler struct {
	workdir  string
	interval time.Duration
	history  int
	shutdown <-chan struct{}

	samples []map[string]int
}

// NewSampler creates a sampler that ticks every interval and keeps up to
// history snapshots. The sampler stops and persists when shutdown closes.
func NewSampler(workdir string, interval time.Duration, history int,
	shutdown <-chan struct{}) *Sampler {
	return &Sampler{
		workdir:  workdir,
		interval: interval,
		history:  history,
		shutdown: shutdown,
	}
}

// Run loops until shutdown. It is meant to be started in its own goroutine.
func (s *Sampler) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			s.persist()
			return
		case <-ticker.C:
			snap := Collect()
			s.samples = append(s.samples, snap)
			if len(s.samples) > s.history {
				s.samples = s.samples[len(s.samples)-s.history:]
			}
			log.Logf(1, "stats: %v", snap)
		}
	}
}

func (s *Sampler) persist() {
	if len(s.samples) == 0 {
		return
	}
	data, err := json.MarshalIndent(s.samples, "", "\t")
	if err != nil {
		log.Fatalf("stats: failed to marshal samples: %v", err)
	}
	path := filepath.Join(s.workdir, "stats.json")
	if err := osutil.WriteFile(path, data); err != nil {
		log.Fatalf("stats: failed to persist to %v: %v", path, err)
	}
}
