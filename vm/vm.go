// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package vm wraps the vmimpl guest interface with config-driven kind
// selection and the process-fatal boot policy.
package vm

import (
	"fmt"

	"github.com/healer-fuzz/healer/pkg/log"
	"github.com/healer-fuzz/healer/pkg/mgrconfig"
	"github.com/healer-fuzz/healer/vm/vmimpl"

	// Import all guest kinds, so that users only need to import vm.
	_ "github.com/healer-fuzz/healer/vm/qemu"
)

// Guest is one guest machine, owned by exactly one worker at a time.
type Guest struct {
	impl vmimpl.Instance
}

// Create constructs the guest kind named by the config. The guest is
// returned Unbooted; call Boot before dispatching anything.
func Create(cfg *mgrconfig.Config) (*Guest, error) {
	ctor := vmimpl.Types[cfg.Guest.Platform]
	if ctor == nil {
		return nil, fmt.Errorf("unknown guest platform %q", cfg.Guest.Platform)
	}
	env := &vmimpl.Env{
		OS:           cfg.Guest.OS,
		Arch:         cfg.Guest.Arch,
		Image:        cfg.Qemu.Image,
		Kernel:       cfg.Qemu.Kernel,
		SSHKey:       cfg.SSH.KeyPath,
		Mem:          cfg.Qemu.MemSize,
		CPU:          cfg.Qemu.CPUNum,
		WaitBootSecs: cfg.Qemu.WaitBootTime,
		Debug:        cfg.Debug,
	}
	impl, err := ctor(env)
	if err != nil {
		return nil, err
	}
	return &Guest{impl: impl}, nil
}

// Boot boots the guest. Exhausting the bounded boot retries is
// unrecoverable for the current process: the captured console output is
// printed and the process terminates. Recovery, if any, belongs to an
// outside supervisor.
func (g *Guest) Boot() {
	err := g.impl.Boot()
	if err == nil {
		return
	}
	if bootErr, ok := err.(vmimpl.BootError); ok {
		title, output := bootErr.BootError()
		log.Logf(0, "%s", output)
		log.Logf(0, "===============================================")
		log.Fatalf("failed to boot guest: %v", title)
	}
	log.Fatalf("failed to boot guest: %v", err)
}

func (g *Guest) IsAlive() bool {
	return g.impl.IsAlive()
}

func (g *Guest) RunCmd(cmd *vmimpl.Command) (*vmimpl.RemoteProcess, error) {
	return g.impl.RunCmd(cmd)
}

func (g *Guest) CollectCrash() *vmimpl.Crash {
	return g.impl.CollectCrash()
}

func (g *Guest) Clear() {
	g.impl.Clear()
}

func (g *Guest) Copy(hostSrc string) (string, error) {
	return g.impl.Copy(hostSrc)
}
