// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"fmt"
	"io"
	"os"
)

// The rendezvous between monitor and agent is a pipe carrying one byte per
// acknowledgment. It is not a counting queue: the agent performs exactly one
// Wait per sample and the monitor exactly one Notify per received sample, so
// at most one byte is ever in flight.

type notifier struct {
	w *os.File
}

// notify signals one acknowledgment.
func (n notifier) notify() error {
	_, err := n.w.Write([]byte{0})
	return err
}

func (n notifier) close() {
	n.w.Close()
}

// waitAck consumes exactly one acknowledgment, blocking until it arrives.
// Returns an error if the monitor side is gone.
func waitAck(r io.Reader) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return fmt.Errorf("rendezvous closed: %w", err)
	}
	return nil
}
