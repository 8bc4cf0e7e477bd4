//go:build !linux

package runner

import (
	"os"
	"os/exec"
	"syscall"
)

func processAttr() *syscall.SysProcAttr {
	return nil
}

// killProcessTree only reaches the top process on this platform.
func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func peakMemoryKB(*os.ProcessState) int64 {
	return 0
}
