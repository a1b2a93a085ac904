// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ipc implements the host side of the execution protocol: it spawns
// the agent process, receives per-statement coverage over a framed pipe in
// lock step and classifies the outcome of the run.
package ipc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/healer-fuzz/healer/pkg/cover"
	"github.com/healer-fuzz/healer/pkg/log"
	"github.com/healer-fuzz/healer/pkg/osutil"
	"github.com/healer-fuzz/healer/pkg/stat"
	"github.com/healer-fuzz/healer/prog"
)

const (
	// The monitor kills the agent after this long without any activity on
	// either channel.
	noActivityTimeout = 500 * time.Millisecond

	// Exit statuses of the agent process.
	StatusOK   = 0
	StatusFail = 67 // a statement failed semantically, deliberate stop

	// File descriptors the agent binary inherits (ExtraFiles starts at 3).
	agentProgFD = 3
	agentDataFD = 4
	agentAckFD  = 5
)

// ErrTimeout is returned when the agent produced no samples within the
// inactivity timeout.
var ErrTimeout = errors.New("time out")

// ExecError carries the diagnostic text captured from the agent's merged
// stdout/stderr when the run produced no coverage at all.
type ExecError struct {
	Output []byte
}

func (err *ExecError) Error() string {
	return fmt.Sprintf("agent failed: %s", err.Output)
}

var (
	statExecs    = stat.New("executions", "Total agent runs")
	statTimeouts = stat.New("exec timeouts", "Agent runs killed on inactivity")
	statFailures = stat.New("exec failures", "Agent runs that produced no coverage")
)

// Env describes how to run the agent binary.
type Env struct {
	bin []string
}

// MakeEnv creates an execution environment around the agent binary
// invocation (binary path plus fixed arguments, space-separated).
func MakeEnv(bin string) (*Env, error) {
	fields := strings.Fields(bin)
	if len(fields) == 0 {
		return nil, fmt.Errorf("agent binary is an empty string")
	}
	return &Env{bin: fields}, nil
}

// Exec runs one program to completion and returns either the coverage
// samples collected (one per successfully executed statement, in program
// order) or an error. Never both: once any sample exists, the run counts as
// a (possibly partial) success and diagnostic text is discarded.
//
// Failures of the underlying OS operations (pipe creation, spawn) are
// infrastructure failures and abort the process, they are never attributed
// to the target under test.
func (env *Env) Exec(p *prog.Prog) ([]cover.Sample, error) {
	statExecs.Add(1)

	dataR, dataW, err := osutil.LongPipe()
	if err != nil {
		log.Fatalf("ipc: failed to create data pipe: %v", err)
	}
	errR, errW, err := osutil.LongPipe()
	if err != nil {
		log.Fatalf("ipc: failed to create error pipe: %v", err)
	}
	progR, progW, err := os.Pipe()
	if err != nil {
		log.Fatalf("ipc: failed to create prog pipe: %v", err)
	}
	ackR, ackW, err := os.Pipe()
	if err != nil {
		log.Fatalf("ipc: failed to create ack pipe: %v", err)
	}

	cmd := osutil.Command(env.bin[0], env.bin[1:]...)
	cmd.Stdout = errW
	cmd.Stderr = errW
	cmd.ExtraFiles = []*os.File{progR, dataW, ackR}
	if err := cmd.Start(); err != nil {
		log.Fatalf("ipc: failed to start agent %v: %v", env.bin, err)
	}
	// Close the child's ends in this process, otherwise EOF never arrives.
	progR.Close()
	dataW.Close()
	ackR.Close()
	errW.Close()

	// Send the program asynchronously: a program larger than the pipe
	// buffer must not stall Exec before the monitor loop and its
	// inactivity timer are running. If the agent dies before reading,
	// the write fails with EPIPE and the monitor classifies the run off
	// the error channel; killing the agent unblocks a stuck write the
	// same way.
	go func() {
		if _, err := progW.Write(p.Serialize()); err != nil {
			log.Logf(2, "ipc: failed to send program: %v", err)
		}
		progW.Close()
	}()

	mon := &monitor{
		cmd:      cmd,
		dataR:    dataR,
		errR:     errR,
		ack:      notifier{ackW},
		samples:  make(chan cover.Sample),
		errEvent: make(chan errChunk, 1),
		done:     make(chan struct{}),
	}
	return mon.run()
}

type errChunk struct {
	data []byte
	err  error
}

type monitor struct {
	cmd      *exec.Cmd
	dataR    *os.File
	errR     *os.File
	ack      notifier
	samples  chan cover.Sample
	errEvent chan errChunk
	done     chan struct{}
	readers  errgroup.Group
}

func (mon *monitor) run() ([]cover.Sample, error) {
	mon.readers.Go(mon.readData)
	mon.readers.Go(mon.readErr)
	defer mon.cleanup()

	var covs []cover.Sample
	samples := mon.samples
	timer := time.NewTimer(noActivityTimeout)
	defer timer.Stop()
	for {
		// When a sample and the error event are ready at the same time,
		// select picks one at random rather than favoring the error
		// channel. Lock-step keeps at most one sample in flight, and a
		// sample that arrived before the agent died is still valid, so
		// the classification comes out the same either way.
		select {
		case <-timer.C:
			// No activity: the agent is stuck inside a statement.
			mon.kill()
			if len(covs) == 0 {
				statTimeouts.Add(1)
				return nil, ErrTimeout
			}
			return covs, nil

		case s, ok := <-samples:
			if !ok {
				// Data pipe closed; the terminal condition comes from
				// the error channel, keep waiting on it.
				samples = nil
				continue
			}
			covs = append(covs, s)
			if err := mon.ack.notify(); err != nil {
				// The agent died between sending the sample and waiting
				// for the ack; the error channel will classify the run.
				log.Logf(2, "ipc: ack failed: %v", err)
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(noActivityTimeout)

		case chunk := <-mon.errEvent:
			// Anything on the error channel (or its closure) ends the run.
			mon.kill()
			text := chunk.data
			if chunk.err == nil {
				// The pipe is still open, drain what is left now that
				// the agent is dead.
				text = append(text, osutil.DrainPipe(mon.errR)...)
			}
			if len(covs) == 0 {
				statFailures.Add(1)
				return nil, &ExecError{Output: text}
			}
			// Partial success takes precedence, the diagnostic text is
			// deliberately dropped (kept at high verbosity for debugging).
			if len(text) != 0 {
				log.Logf(2, "ipc: discarding agent output after %v samples: %s",
					len(covs), text)
			}
			return covs, nil
		}
	}
}

func (mon *monitor) readData() error {
	defer close(mon.samples)
	for {
		s, err := cover.ReadSample(mon.dataR)
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				log.Logf(2, "ipc: data channel: %v", err)
			}
			return nil
		}
		select {
		case mon.samples <- s:
		case <-mon.done:
			return nil
		}
	}
}

func (mon *monitor) readErr() error {
	buf := make([]byte, 4<<10)
	n, err := mon.errR.Read(buf)
	mon.errEvent <- errChunk{data: buf[:n], err: err}
	return nil
}

func (mon *monitor) kill() {
	mon.cmd.Process.Kill()
}

func (mon *monitor) cleanup() {
	mon.kill()
	mon.cmd.Wait()
	close(mon.done)
	mon.dataR.Close()
	mon.errR.Close()
	mon.ack.close()
	mon.readers.Wait()
}
