//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

const supportsSuspend = false

func set(cmd *exec.Cmd) {}

func suspend(cmd *exec.Cmd) error { return ErrUnsupported }
func resume(cmd *exec.Cmd) error  { return ErrUnsupported }

// kill only reaches the root process here.
func kill(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
