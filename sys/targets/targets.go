// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package targets describes the kernels the fuzzer can run against.
package targets

import "fmt"

type Target struct {
	OS       string
	Arch     string
	PtrSize  uint64
	// SSHPort is the port the guest's ssh daemon listens on.
	SSHPort int
}

const (
	Linux = "linux"
	AMD64 = "amd64"
)

var list = map[string]*Target{
	"linux/amd64": {
		OS:      Linux,
		Arch:    AMD64,
		PtrSize: 8,
		SSHPort: 22,
	},
}

// Get returns the target description for OS/arch, or nil if unsupported.
func Get(os, arch string) *Target {
	return list[os+"/"+arch]
}

// List returns the supported "os/arch" names.
func List() []string {
	var res []string
	for name := range list {
		res = append(res, name)
	}
	return res
}

func (t *Target) String() string {
	return fmt.Sprintf("%v/%v", t.OS, t.Arch)
}
