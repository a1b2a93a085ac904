// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package vmimpl

import (
	"fmt"
	"strconv"
)

// SSHOptions identifies one remote-shell endpoint inside a guest.
type SSHOptions struct {
	Addr string
	Port int
	Key  string
	User string
}

// The transport always runs with the same fixed options: no host-key
// verification (the guest is disposable and its keys churn on every
// reboot), non-interactive batch mode, identity-file auth only and a
// bounded connect timeout.
func sshCommonArgs() []string {
	return []string{
		"-F", "/dev/null",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "BatchMode=yes",
		"-o", "IdentitiesOnly=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "ConnectTimeout=3",
	}
}

// SSHArgs builds the argument list for running a remote command:
// ssh <fixed options> -p port -i key user@addr cmd args...
func SSHArgs(opts SSHOptions, cmd string, cmdArgs ...string) []string {
	args := append(sshCommonArgs(),
		"-p", strconv.Itoa(opts.Port),
		"-i", opts.Key,
		opts.User+"@"+opts.Addr,
		cmd,
	)
	return append(args, cmdArgs...)
}

// SCPArgs builds the argument list for copying hostSrc to guestDst:
// scp <fixed options> -P port -i key hostSrc user@addr:guestDst
func SCPArgs(opts SSHOptions, hostSrc, guestDst string) []string {
	return append(sshCommonArgs(),
		"-P", strconv.Itoa(opts.Port),
		"-i", opts.Key,
		hostSrc,
		fmt.Sprintf("%v@%v:%v", opts.User, opts.Addr, guestDst),
	)
}
