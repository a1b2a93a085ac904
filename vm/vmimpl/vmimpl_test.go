// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package vmimpl

import (
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSSH = SSHOptions{Addr: "localhost", Port: 10022, Key: "/keys/id_rsa", User: "root"}

func TestSSHArgs(t *testing.T) {
	args := SSHArgs(testSSH, "pwd")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-F /dev/null")
	assert.Contains(t, joined, "-o BatchMode=yes")
	assert.Contains(t, joined, "-o StrictHostKeyChecking=no")
	assert.Contains(t, joined, "-p 10022")
	assert.Contains(t, joined, "-i /keys/id_rsa")
	// The remote command comes last so extra args land after it.
	assert.Equal(t, "root@localhost pwd", strings.Join(args[len(args)-2:], " "))

	args = SSHArgs(testSSH, "./agent", "-debug")
	assert.Equal(t, []string{"./agent", "-debug"}, args[len(args)-2:])
}

func TestSCPArgs(t *testing.T) {
	args := SCPArgs(testSSH, "/bin/agent", "~/agent")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-P 10022")
	assert.Contains(t, joined, "-i /keys/id_rsa")
	assert.Equal(t, "/bin/agent", args[len(args)-2])
	assert.Equal(t, "root@localhost:~/agent", args[len(args)-1])
}

func TestMakeCrash(t *testing.T) {
	crash := MakeCrash([]byte("BUG: kernel NULL pointer dereference"))
	assert.False(t, crash.Empty())
	assert.Equal(t, "BUG: kernel NULL pointer dereference", crash.String())

	crash = MakeCrash(nil)
	assert.True(t, crash.Empty())
	assert.Equal(t, NoCrashInfo, crash.String())
}

func TestBootErrorFormat(t *testing.T) {
	err := BootError{Title: "guest did not come up", Output: []byte("console tail")}
	assert.Contains(t, err.Error(), "guest did not come up")
	assert.Contains(t, err.Error(), "console tail")
	title, output := err.BootError()
	assert.Equal(t, "guest did not come up", title)
	assert.Equal(t, []byte("console tail"), output)
}

func TestUnusedTCPPort(t *testing.T) {
	port, err := UnusedTCPPort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	// The port must be bindable right after.
	ln, err := net.Listen("tcp", "localhost:"+strconv.Itoa(port))
	require.NoError(t, err)
	ln.Close()
}
