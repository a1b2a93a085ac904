// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"fmt"
	"runtime"

	"github.com/healer-fuzz/healer/pkg/config"
	"github.com/healer-fuzz/healer/pkg/osutil"
	"github.com/healer-fuzz/healer/sys/targets"
)

const (
	defaultWaitBootTime = 5
	minMemSize          = 512
)

var supportedPlatforms = []string{"qemu"}

func LoadFile(filename string) (*Config, error) {
	cfg := new(Config)
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	return cfg, Complete(cfg)
}

func LoadData(data []byte) (*Config, error) {
	cfg := new(Config)
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	return cfg, Complete(cfg)
}

// Complete fills in defaults and validates the config. All errors are
// configuration errors: the caller is expected to treat them as fatal.
func Complete(cfg *Config) error {
	if !contains(supportedPlatforms, cfg.Guest.Platform) {
		return fmt.Errorf("unsupported platform %q, supported: %v",
			cfg.Guest.Platform, supportedPlatforms)
	}
	if targets.Get(cfg.Guest.OS, cfg.Guest.Arch) == nil {
		return fmt.Errorf("unsupported guest %v/%v, supported: %v",
			cfg.Guest.OS, cfg.Guest.Arch, targets.List())
	}
	if cfg.Qemu == nil {
		return fmt.Errorf("config requires the qemu section")
	}
	if cfg.SSH == nil {
		return fmt.Errorf("config requires the ssh section")
	}
	if err := completeQemu(cfg.Qemu); err != nil {
		return err
	}
	if !osutil.IsRegularFile(cfg.SSH.KeyPath) {
		return fmt.Errorf("ssh key %v does not exist", cfg.SSH.KeyPath)
	}
	if cfg.Sampler != nil {
		if err := checkSampler(cfg.Sampler); err != nil {
			return err
		}
	}
	return nil
}

func completeQemu(cfg *Qemu) error {
	hostCPU := runtime.NumCPU()
	if cfg.CPUNum <= 0 || cfg.CPUNum > hostCPU {
		return fmt.Errorf("invalid cpu_num %v, want (0, %v]", cfg.CPUNum, hostCPU)
	}
	if cfg.MemSize < minMemSize {
		return fmt.Errorf("invalid mem_size %v, want at least %v MiB", cfg.MemSize, minMemSize)
	}
	if !osutil.IsRegularFile(cfg.Image) {
		return fmt.Errorf("image %v does not exist", cfg.Image)
	}
	if !osutil.IsRegularFile(cfg.Kernel) {
		return fmt.Errorf("kernel %v does not exist", cfg.Kernel)
	}
	if cfg.WaitBootTime == 0 {
		cfg.WaitBootTime = defaultWaitBootTime
	}
	if cfg.WaitBootTime < 0 {
		return fmt.Errorf("invalid wait_boot_time %v", cfg.WaitBootTime)
	}
	return nil
}

func checkSampler(cfg *Sampler) error {
	if cfg.SampleInterval < 10 || cfg.ReportInterval <= 10 {
		return fmt.Errorf("invalid sampler intervals: sample %vs, report %vm",
			cfg.SampleInterval, cfg.ReportInterval)
	}
	if cfg.SampleInterval >= cfg.ReportInterval*60 {
		return fmt.Errorf("sample_interval %vs must be below report_interval %vm",
			cfg.SampleInterval, cfg.ReportInterval)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
