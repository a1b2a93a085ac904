// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mgrconfig holds the validated top-level configuration: which
// kernel to fuzz, how to boot it and how to reach it.
package mgrconfig

// Config is the top-level config file layout.
type Config struct {
	// Workdir receives runtime artifacts (persisted stats, crash logs).
	Workdir string `json:"workdir"`
	Guest   Guest  `json:"guest"`
	// Qemu is required while the only supported platform is qemu.
	Qemu *Qemu `json:"qemu"`
	SSH  *SSH  `json:"ssh"`
	// Sampler is optional; nil disables periodic stats sampling.
	Sampler *Sampler `json:"sampler"`
	Debug   bool     `json:"debug"`
}

// Guest names the kernel under test and the platform that runs it.
type Guest struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Platform string `json:"platform"`
}

// Qemu configures the VM: resources and images.
type Qemu struct {
	CPUNum  int    `json:"cpu_num"`
	MemSize int    `json:"mem_size"` // MiB
	Image   string `json:"image"`
	Kernel  string `json:"kernel"`
	// WaitBootTime is the sleep between boot liveness probes, seconds.
	// 5 if not set.
	WaitBootTime int `json:"wait_boot_time"`
}

// SSH configures the remote transport into the guest.
type SSH struct {
	KeyPath string `json:"key_path"`
}

// Sampler configures periodic stats sampling.
type Sampler struct {
	// SampleInterval is in seconds, ReportInterval in minutes.
	SampleInterval int `json:"sample_interval"`
	ReportInterval int `json:"report_interval"`
}
