// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const longPipeSize = 1 << 20

// LongPipe creates a pipe with the kernel buffer grown to 1 MiB,
// so that a writer (qemu console, coverage stream) does not stall
// while the reader is busy elsewhere.
func LongPipe() (*os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	rawConn, err := w.SyscallConn()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access pipe fd: %w", err)
	}
	rawConn.Control(func(fd uintptr) {
		for sz := 128 << 10; sz <= longPipeSize; sz *= 2 {
			unix.FcntlInt(fd, unix.F_SETPIPE_SZ, sz)
		}
	})
	return r, w, nil
}

// ReadAllNonblock drains everything currently buffered in the pipe r
// without waiting for more data, even if the write end is still open.
// It reads through the raw descriptor: the fd stays registered with the
// runtime poller in non-blocking mode (no Fd() call that would flip it
// to blocking), and EAGAIN from the raw read means the pipe is empty now.
func ReadAllNonblock(r *os.File) []byte {
	var result []byte
	rawConn, err := r.SyscallConn()
	if err != nil {
		return nil
	}
	buf := make([]byte, 64<<10)
	rawConn.Read(func(fd uintptr) bool {
		for {
			n, err := unix.Read(int(fd), buf)
			if n > 0 {
				result = append(result, buf[:n]...)
			}
			if n <= 0 || err != nil {
				// Empty (EAGAIN), closed or broken: done either way,
				// never hand control back to the poller to wait.
				return true
			}
		}
	})
	return result
}

// DrainPipe reads r to completion (until EOF or error) and returns what it got.
func DrainPipe(r io.Reader) []byte {
	data, _ := io.ReadAll(r)
	return data
}

func setPdeathsig(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = new(syscall.SysProcAttr)
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
