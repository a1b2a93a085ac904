// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package vmimpl provides the abstract guest machine interface implemented
// by the concrete guest kinds (today just qemu), plus utilities shared by
// implementations. A guest value is owned by exactly one worker at a time;
// implementations do no internal locking.
package vmimpl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
)

// Instance is the capability set every guest kind must support.
type Instance interface {
	// Boot starts (or force-restarts) the guest and blocks until it is
	// alive. A prior session, if any, is killed and discarded first.
	// Returns a BootError after the bounded retry count is exhausted;
	// the caller treats that as fatal for the current process.
	Boot() error

	// IsAlive probes guest health with a trivial remote command.
	// It does not mutate the session state.
	IsAlive() bool

	// RunCmd copies the command's binary into the guest, wraps the
	// invocation for remote execution and spawns it with piped
	// stdin/stdout/stderr. The returned handle is owned by the caller;
	// the guest does not supervise its lifetime further.
	// Calling RunCmd without an alive session is a programming error.
	RunCmd(cmd *Command) (*RemoteProcess, error)

	// CollectCrash force-terminates the session, drains whatever console
	// output is buffered and returns it as the crash report. After it
	// returns, no dispatch is permitted until Boot succeeds again.
	CollectCrash() *Crash

	// Clear drains and discards buffered console output without
	// terminating the session. Used between dispatches so the console
	// pipe never fills up.
	Clear()

	// Copy transfers a local regular file into the guest and returns the
	// guest-side path. Transport errors are fatal to the process.
	Copy(hostSrc string) (string, error)
}

// Command is an opaque remote command descriptor: a binary plus arguments.
// The guest only copies the binary and wraps the invocation, it never
// interprets the arguments.
type Command struct {
	Bin  string
	Args []string
}

// RemoteProcess is an owned handle to a command running inside the guest.
// The caller decides when to kill it, typically by tying it to a
// per-run timeout.
type RemoteProcess struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Kill force-terminates the remote invocation and reaps the local handle.
func (p *RemoteProcess) Kill() {
	p.Cmd.Process.Kill()
	p.Cmd.Wait()
}

// NoCrashInfo is the sentinel report text when the guest died without
// leaving anything in the console pipe.
const NoCrashInfo = "$$"

// Crash is the console text captured at the time of the guest's death.
type Crash struct {
	Output string
}

func MakeCrash(output []byte) *Crash {
	if len(output) == 0 {
		return &Crash{Output: NoCrashInfo}
	}
	return &Crash{Output: string(output)}
}

// Empty reports whether no console output was captured.
func (c *Crash) Empty() bool {
	return c.Output == NoCrashInfo
}

func (c *Crash) String() string {
	return c.Output
}

// BootError is returned by Boot when the guest does not come up within the
// bounded retry count. It carries the captured console output.
type BootError struct {
	Title  string
	Output []byte
}

func (err BootError) Error() string {
	return fmt.Sprintf("%v\n%s", err.Title, err.Output)
}

func (err BootError) BootError() (string, []byte) {
	return err.Title, err.Output
}

// ErrNotAlive is returned when a dispatch is attempted on a guest whose
// session is not in the Alive state.
var ErrNotAlive = errors.New("guest session is not alive")

// Register registers a guest kind constructor within the package.
func Register(typ string, ctor CtorFunc) {
	Types[typ] = ctor
}

type CtorFunc func(env *Env) (Instance, error)

var Types = make(map[string]CtorFunc)

// Env carries the validated configuration a guest kind constructor needs.
type Env struct {
	OS     string
	Arch   string
	Image  string
	Kernel string
	SSHKey string
	// Mem is the guest memory size in MiB, CPU the virtual CPU count.
	Mem int
	CPU int
	// WaitBootSecs is how long to sleep between boot liveness probes.
	WaitBootSecs int
	Debug        bool
}

// UnusedTCPPort finds a free local port to forward into the guest.
// Returns an error if none can be found within a reasonable number of
// attempts (a temporary host-level failure).
func UnusedTCPPort() (int, error) {
	for i := 0; i < 1000; i++ {
		ln, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			continue
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free local port to forward")
}
