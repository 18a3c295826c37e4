//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

const supportsSuspend = true

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func suspend(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGSTOP) }
func resume(cmd *exec.Cmd) error  { return signalGroup(cmd, syscall.SIGCONT) }
func kill(cmd *exec.Cmd) error    { return signalGroup(cmd, syscall.SIGKILL) }

// signalGroup sends sig to the process group of cmd. A group that has already
// exited is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}

	// Negative PGID signals the whole group
	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}
