//go:build linux

package execution

import (
	"bytes"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// canProbeInput reports whether awaitingInput can tell a child waiting for input
const canProbeInput = true

// awaitingInput holds when the child has read everything written to its
// stdin and is asleep, which for an interactive program means it is blocked
// on its next read.
func awaitingInput(pid int, stdin *os.File) bool {
	pending, err := pendingInput(stdin)
	if err != nil || pending > 0 {
		return false
	}
	return sleeping(pid)
}

// pendingInput returns the number of bytes written to the pipe but not yet read
func pendingInput(f *os.File) (int, error) {
	conn, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var ioctlErr error
	if err := conn.Control(func(fd uintptr) {
		n, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
	}); err != nil {
		return 0, err
	}
	return n, ioctlErr
}

func sleeping(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 {
		return false
	}
	fields := bytes.Fields(stat[i+1:])
	return len(fields) > 0 && string(fields[0]) == "S"
}
