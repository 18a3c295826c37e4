// Package procgroup controls the lifecycle of an external encoder and every
// child it forks. Commands are started as process group leaders so that
// suspend, continue and kill reach the whole tree.
package procgroup

import (
	"errors"
	"os/exec"

	"framecast/internal/metrics"
)

// ErrUnsupported is returned by Suspend and Continue on platforms without
// job-control signals.
var ErrUnsupported = errors.New("process suspension not supported on this platform")

// Set configures the command to start in a new process group.
// Mandatory for Group to reach children of the command.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// SupportsSuspend reports whether Suspend and Continue work on this platform.
// Callers degrade pause to a cooperative wait when it is false.
func SupportsSuspend() bool {
	return supportsSuspend
}

// Group is the lifecycle handle of a started command.
type Group struct {
	cmd *exec.Cmd
}

// New wraps a command that was configured with Set and already started.
func New(cmd *exec.Cmd) *Group {
	return &Group{cmd: cmd}
}

func (g *Group) Pid() int {
	if g == nil || g.cmd == nil || g.cmd.Process == nil {
		return 0
	}
	return g.cmd.Process.Pid
}

// Suspend stops every process in the group.
func (g *Group) Suspend() error {
	return g.send("SIGSTOP", suspend)
}

// Continue resumes a suspended group.
func (g *Group) Continue() error {
	return g.send("SIGCONT", resume)
}

// Kill forcefully terminates the group. A stopped group is killed as well;
// SIGKILL does not need the processes to be running.
func (g *Group) Kill() error {
	return g.send("SIGKILL", kill)
}

func (g *Group) send(name string, fn func(*exec.Cmd) error) error {
	if g == nil || g.cmd == nil || g.cmd.Process == nil {
		return nil
	}
	err := fn(g.cmd)
	switch {
	case err == nil:
		metrics.IncProcSignal(name, "sent")
	case errors.Is(err, ErrUnsupported):
		metrics.IncProcSignal(name, "unsupported")
	default:
		metrics.IncProcSignal(name, "error")
	}
	return err
}
