// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"errors"
	"io"
	"os"

	"github.com/healer-fuzz/healer/pkg/cover"
	"github.com/healer-fuzz/healer/pkg/log"
	"github.com/healer-fuzz/healer/prog"
	"github.com/healer-fuzz/healer/sys/targets"
)

// Interpreter executes one translated statement and reports whether it
// completed successfully. The embedded interpreter is provided by the
// binary that links this package, it is never implemented here.
type Interpreter interface {
	Execute(stmt string) bool
}

// Cover is a scoped coverage-instrumentation handle. Collect runs fn with
// collection enabled and returns the PCs recorded during that scope.
// The scope is released before Collect returns on every path.
type Cover interface {
	Collect(fn func()) []uint64
}

// ErrStatementFailed is returned by RunAgent when a statement fails
// semantically. This is a deliberate stop, distinct from a crash:
// the agent must exit with StatusFail without sending further data.
var ErrStatementFailed = errors.New("statement failed")

// AgentMain is the entry point of the agent process. The monitor spawns the
// agent binary with the program on fd 3, the coverage data pipe on fd 4 and
// the acknowledgment pipe on fd 5; stdout and stderr are already merged into
// the monitor's error channel by the parent's pipe wiring, so anything the
// interpreter or the runtime prints becomes diagnostic text.
// AgentMain does not return.
func AgentMain(t *targets.Target, interp Interpreter, cov Cover) {
	progPipe := os.NewFile(agentProgFD, "prog")
	data := os.NewFile(agentDataFD, "data")
	ack := os.NewFile(agentAckFD, "ack")
	if progPipe == nil || data == nil || ack == nil {
		log.Fatalf("agent: inherited pipes are missing")
	}
	p, err := prog.ReadFrom(progPipe)
	if err != nil {
		log.Fatalf("agent: failed to read program: %v", err)
	}
	progPipe.Close()
	if err := RunAgent(p, t, interp, cov, data, ack); err != nil {
		os.Exit(StatusFail)
	}
	os.Exit(StatusOK)
}

// RunAgent translates p against t and executes it statement by statement:
// run, collect coverage, frame and send, wait for the acknowledgment, only
// then move to the next statement. Returns nil when every statement ran,
// ErrStatementFailed on the first semantic failure.
// IO failures on the channels are fatal to the process.
func RunAgent(p *prog.Prog, t *targets.Target, interp Interpreter, cov Cover,
	out io.Writer, ack io.Reader) error {
	it := prog.Translate(p, t)
	for {
		stmt, ok := it.Next()
		if !ok {
			return nil
		}
		var success bool
		sample := cover.Sample(cov.Collect(func() {
			success = interp.Execute(stmt)
		}))
		if !success {
			return ErrStatementFailed
		}
		if len(sample) == 0 {
			log.Fatalf("agent: empty coverage sample for %q", stmt)
		}
		if err := cover.WriteSample(out, sample); err != nil {
			log.Fatalf("agent: failed to send sample: %v", err)
		}
		if err := waitAck(ack); err != nil {
			log.Fatalf("agent: %v", err)
		}
	}
}
