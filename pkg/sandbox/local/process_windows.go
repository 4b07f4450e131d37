//go:build windows

package local

import (
	"os"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

// killProcessGroup is a no-op: Windows process groups only route console
// signals and cannot be killed as a unit.
func killProcessGroup(int) {}

func exitCode(ps *os.ProcessState) int {
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
