// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package qemu drives a kernel under test inside a qemu VM: boot with
// bounded retries, ssh liveness probing, remote command dispatch and crash
// evidence extraction from the captured serial console.
package qemu

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/healer-fuzz/healer/pkg/log"
	"github.com/healer-fuzz/healer/pkg/osutil"
	"github.com/healer-fuzz/healer/pkg/stat"
	"github.com/healer-fuzz/healer/sys/targets"
	"github.com/healer-fuzz/healer/vm/vmimpl"
)

func init() {
	vmimpl.Register("qemu", ctor)
}

const (
	maxBootRetries  = 5
	hostAddr        = "localhost"
	guestUser       = "root"
	userNetHostAddr = "10.0.2.10"
	probeTimeout    = 30 * time.Second
	copyTimeout     = 3 * time.Minute
)

var (
	statBoots       = stat.New("guest boots", "Successful guest boots")
	statBootRetries = stat.New("guest boot retries", "Liveness probes that failed during boot")
	statCrashes     = stat.New("guest crashes", "Crash collections performed")
)

type archConfig struct {
	Qemu     string
	QemuArgs []string
	Append   []string
}

var archConfigs = map[string]*archConfig{
	"linux/amd64": {
		Qemu: "qemu-system-x86_64",
		QemuArgs: []string{
			"-enable-kvm",
			"-no-reboot",
			"-display", "none",
			"-serial", "stdio",
			"-snapshot",
			"-cpu", "host,migratable=off",
			"-net", "nic,model=e1000",
		},
		Append: []string{
			"earlyprintk=serial",
			"oops=panic",
			"nmi_watchdog=panic",
			"panic_on_warn=1",
			"panic=1",
			"ftrace_dump_on_oops=orig_cpu",
			"rodata=n",
			"vsyscall=native",
			"net.ifnames=0",
			"biosdevname=0",
			"root=/dev/sda",
			"console=ttyS0",
			"kvm-intel.nested=1",
			"kvm-intel.unrestricted_guest=1",
			"kvm-intel.ept=1",
			"kvm-intel.flexpriority=1",
			"kvm-intel.vpid=1",
			"kvm-intel.emulate_invalid_guest_state=1",
			"kvm-intel.eptad=1",
			"kvm-intel.enable_shadow_vmcs=1",
			"kvm-intel.pml=1",
			"kvm-intel.enable_apicv=1",
		},
	},
}

type instance struct {
	env      *vmimpl.Env
	arch     *archConfig
	target   *targets.Target
	args     []string
	waitBoot time.Duration
	debug    bool
	ssh      vmimpl.SSHOptions

	// Live session; both nil/false when Unbooted or Crashed.
	qemu    *exec.Cmd
	console *os.File
	alive   bool
}

func ctor(env *vmimpl.Env) (vmimpl.Instance, error) {
	arch := archConfigs[env.OS+"/"+env.Arch]
	if arch == nil {
		return nil, fmt.Errorf("unsupported qemu guest: %v/%v", env.OS, env.Arch)
	}
	target := targets.Get(env.OS, env.Arch)
	if target == nil {
		return nil, fmt.Errorf("unsupported target: %v/%v", env.OS, env.Arch)
	}
	if _, err := exec.LookPath(arch.Qemu); err != nil {
		return nil, err
	}
	port, err := vmimpl.UnusedTCPPort()
	if err != nil {
		return nil, err
	}
	inst := &instance{
		env:      env,
		arch:     arch,
		target:   target,
		waitBoot: time.Duration(env.WaitBootSecs) * time.Second,
		debug:    env.Debug,
		ssh: vmimpl.SSHOptions{
			Addr: hostAddr,
			Port: port,
			Key:  env.SSHKey,
			User: guestUser,
		},
	}
	inst.args = inst.buildArgs()
	return inst, nil
}

func (inst *instance) buildArgs() []string {
	args := append([]string{}, inst.arch.QemuArgs...)
	args = append(args,
		"-append", strings.Join(inst.arch.Append, " "),
		"-m", strconv.Itoa(inst.env.Mem),
		"-smp", strconv.Itoa(inst.env.CPU),
		"-net", fmt.Sprintf("user,host=%v,hostfwd=tcp::%v-:%v",
			userNetHostAddr, inst.ssh.Port, inst.target.SSHPort),
		"-hda", inst.env.Image,
		"-kernel", inst.env.Kernel,
	)
	return args
}

// Boot starts the VM and polls it with liveness probes until it answers,
// up to maxBootRetries probes spaced by the configured wait time. A running
// prior session is killed first, so Boot doubles as reboot.
func (inst *instance) Boot() error {
	inst.killSession()

	rpipe, wpipe, err := osutil.LongPipe()
	if err != nil {
		log.Fatalf("qemu: failed to create console pipe: %v", err)
	}
	if inst.debug {
		log.Logf(0, "booting %v %v", inst.arch.Qemu, inst.args)
	}
	qemu := osutil.Command(inst.arch.Qemu, inst.args...)
	qemu.Stdout = wpipe
	qemu.Stderr = wpipe
	if err := qemu.Start(); err != nil {
		log.Fatalf("qemu: failed to spawn %v: %v", inst.arch.Qemu, err)
	}
	wpipe.Close()

	for try := 1; ; try++ {
		time.Sleep(inst.waitBoot)
		if inst.IsAlive() {
			break
		}
		statBootRetries.Add(1)
		if try == maxBootRetries {
			qemu.Process.Kill()
			qemu.Wait()
			output := osutil.ReadAllNonblock(rpipe)
			rpipe.Close()
			return vmimpl.BootError{
				Title:  fmt.Sprintf("guest did not come up after %v probes", maxBootRetries),
				Output: output,
			}
		}
	}
	// Throw away whatever the console printed while booting.
	osutil.ReadAllNonblock(rpipe)
	inst.qemu = qemu
	inst.console = rpipe
	inst.alive = true
	statBoots.Add(1)
	return nil
}

// IsAlive runs a no-op command over ssh and checks its exit status.
// A failure to even spawn the ssh client is an infrastructure failure.
func (inst *instance) IsAlive() bool {
	args := vmimpl.SSHArgs(inst.ssh, "pwd")
	_, err := osutil.RunCmd(probeTimeout, "", "ssh", args...)
	if err == nil {
		return true
	}
	var verbose *osutil.VerboseError
	if !errors.As(err, &verbose) {
		log.Fatalf("qemu: failed to spawn liveness probe: %v", err)
	}
	return false
}

// RunCmd ships the command's binary into the guest, rewrites the descriptor
// to the copied path, wraps it for remote execution and spawns it with
// piped stdin/stdout/stderr. The handle is returned to the caller; its
// lifetime is not supervised here.
func (inst *instance) RunCmd(cmd *vmimpl.Command) (*vmimpl.RemoteProcess, error) {
	if !inst.alive {
		return nil, vmimpl.ErrNotAlive
	}
	guestBin, err := inst.Copy(cmd.Bin)
	if err != nil {
		return nil, err
	}
	args := vmimpl.SSHArgs(inst.ssh, guestBin, cmd.Args...)
	if inst.debug {
		log.Logf(0, "running command: ssh %v", args)
	}
	ssh := osutil.Command("ssh", args...)
	proc := &vmimpl.RemoteProcess{Cmd: ssh}
	if proc.Stdin, err = ssh.StdinPipe(); err != nil {
		log.Fatalf("qemu: failed to pipe remote command: %v", err)
	}
	if proc.Stdout, err = ssh.StdoutPipe(); err != nil {
		log.Fatalf("qemu: failed to pipe remote command: %v", err)
	}
	if proc.Stderr, err = ssh.StderrPipe(); err != nil {
		log.Fatalf("qemu: failed to pipe remote command: %v", err)
	}
	if err := ssh.Start(); err != nil {
		log.Fatalf("qemu: failed to spawn remote command: %v", err)
	}
	return proc, nil
}

// CollectCrash kills the session and wraps whatever the console buffered as
// the crash report. The guest stays Crashed until the next Boot.
func (inst *instance) CollectCrash() *vmimpl.Crash {
	statCrashes.Add(1)
	if inst.qemu != nil {
		inst.qemu.Process.Kill()
		inst.qemu.Wait()
		inst.qemu = nil
	}
	var output []byte
	if inst.console != nil {
		output = osutil.ReadAllNonblock(inst.console)
		inst.console.Close()
		inst.console = nil
	}
	inst.alive = false
	return vmimpl.MakeCrash(output)
}

// Clear throws away buffered console output without touching the session.
func (inst *instance) Clear() {
	if inst.console != nil {
		osutil.ReadAllNonblock(inst.console)
	}
}

// Copy transfers a local regular file into the guest's home directory and
// returns the guest-side path. Transport failures and non-regular inputs
// are fatal: they mean the setup is broken, not the target.
func (inst *instance) Copy(hostSrc string) (string, error) {
	if !osutil.IsRegularFile(hostSrc) {
		log.Fatalf("qemu: copy source %v is not a regular file", hostSrc)
	}
	guestDst := "~/" + filepath.Base(hostSrc)
	args := vmimpl.SCPArgs(inst.ssh, hostSrc, guestDst)
	if inst.debug {
		log.Logf(0, "running command: scp %v", args)
	}
	if output, err := osutil.RunCmd(copyTimeout, "", "scp", args...); err != nil {
		log.Fatalf("qemu: failed to copy %v into guest: %v\n%s", hostSrc, err, output)
	}
	return guestDst, nil
}

// killSession tears down the current session, if any. Used both for
// idempotent reboot and crash collection.
func (inst *instance) killSession() {
	if inst.qemu != nil {
		inst.qemu.Process.Kill()
		inst.qemu.Wait()
		inst.qemu = nil
	}
	if inst.console != nil {
		inst.console.Close()
		inst.console = nil
	}
	inst.alive = false
}
