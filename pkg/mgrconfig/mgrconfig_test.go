// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healer-fuzz/healer/pkg/osutil"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		Workdir: dir,
		Guest:   Guest{OS: "linux", Arch: "amd64", Platform: "qemu"},
		Qemu: &Qemu{
			CPUNum:  1,
			MemSize: 2048,
			Image:   filepath.Join(dir, "stretch.img"),
			Kernel:  filepath.Join(dir, "bzImage"),
		},
		SSH: &SSH{KeyPath: filepath.Join(dir, "stretch.id_rsa")},
	}
	for _, file := range []string{cfg.Qemu.Image, cfg.Qemu.Kernel, cfg.SSH.KeyPath} {
		require.NoError(t, osutil.WriteFile(file, []byte("placeholder")))
	}
	return cfg
}

func TestCompleteValid(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, Complete(cfg))
	assert.Equal(t, defaultWaitBootTime, cfg.Qemu.WaitBootTime)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name  string
		mutate func(cfg *Config)
	}{
		{"unknown platform", func(cfg *Config) { cfg.Guest.Platform = "gce" }},
		{"unknown guest", func(cfg *Config) { cfg.Guest.Arch = "riscv64" }},
		{"missing qemu section", func(cfg *Config) { cfg.Qemu = nil }},
		{"missing ssh section", func(cfg *Config) { cfg.SSH = nil }},
		{"zero cpus", func(cfg *Config) { cfg.Qemu.CPUNum = 0 }},
		{"too many cpus", func(cfg *Config) { cfg.Qemu.CPUNum = runtime.NumCPU() + 1 }},
		{"too little memory", func(cfg *Config) { cfg.Qemu.MemSize = 256 }},
		{"missing image", func(cfg *Config) { cfg.Qemu.Image = "/nonexistent/stretch.img" }},
		{"missing kernel", func(cfg *Config) { cfg.Qemu.Kernel = "/nonexistent/bzImage" }},
		{"missing ssh key", func(cfg *Config) { cfg.SSH.KeyPath = "/nonexistent/id_rsa" }},
		{"negative boot wait", func(cfg *Config) { cfg.Qemu.WaitBootTime = -1 }},
		{"sample interval too small", func(cfg *Config) {
			cfg.Sampler = &Sampler{SampleInterval: 5, ReportInterval: 60}
		}},
		{"report interval too small", func(cfg *Config) {
			cfg.Sampler = &Sampler{SampleInterval: 15, ReportInterval: 10}
		}},
		{"sample longer than report", func(cfg *Config) {
			cfg.Sampler = &Sampler{SampleInterval: 3600, ReportInterval: 15}
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := validConfig(t)
			test.mutate(cfg)
			assert.Error(t, Complete(cfg))
		})
	}
}

func TestSamplerValid(t *testing.T) {
	cfg := validConfig(t)
	cfg.Sampler = &Sampler{SampleInterval: 15, ReportInterval: 60}
	assert.NoError(t, Complete(cfg))
}

func TestLoadFile(t *testing.T) {
	cfg := validConfig(t)
	data := []byte(`{
	# kernel under test
	"guest": {"os": "linux", "arch": "amd64", "platform": "qemu"},
	"qemu": {
		"cpu_num": 1,
		"mem_size": 2048,
		"image": "` + cfg.Qemu.Image + `",
		"kernel": "` + cfg.Qemu.Kernel + `"
	},
	"ssh": {"key_path": "` + cfg.SSH.KeyPath + `"}
}`)
	file := filepath.Join(t.TempDir(), "healer.cfg")
	require.NoError(t, osutil.WriteFile(file, data))
	loaded, err := LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "linux", loaded.Guest.OS)
	assert.Equal(t, 2048, loaded.Qemu.MemSize)
	assert.Equal(t, defaultWaitBootTime, loaded.Qemu.WaitBootTime)
}

func TestLoadDataUnknownField(t *testing.T) {
	_, err := LoadData([]byte(`{"gest": {}}`))
	assert.Error(t, err)
}
