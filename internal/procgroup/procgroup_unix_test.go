//go:build linux

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func procState(t *testing.T, pid int) string {
	t.Helper()
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	require.NoError(t, err)
	// Field 3 follows the parenthesised command name.
	rest := string(data[strings.LastIndexByte(string(data), ')')+2:])
	return rest[:1]
}

// liveMembers counts the processes of group pgid that are not zombies. An
// orphan killed with the group stays a zombie until its new parent reaps it,
// which a container init may never do.
func liveMembers(pgid int) int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return -1
	}
	live := 0
	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile("/proc/" + e.Name() + "/stat")
		if err != nil {
			continue
		}
		// state ppid pgrp ... after the parenthesised command name.
		fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
		if len(fields) < 3 || fields[2] != strconv.Itoa(pgid) {
			continue
		}
		if fields[0] != "Z" && fields[0] != "X" {
			live++
		}
	}
	return live
}

func TestSuspendContinueKill(t *testing.T) {
	require.True(t, SupportsSuspend())

	cmd := exec.Command("sh", "-c", "sleep 10 & sleep 10")
	Set(cmd)
	require.NoError(t, cmd.Start())
	g := New(cmd)

	pgid, err := syscall.Getpgid(g.Pid())
	require.NoError(t, err)
	assert.Equal(t, g.Pid(), pgid, "process should lead its group")

	require.NoError(t, g.Suspend())
	require.Eventually(t, func() bool { return procState(t, g.Pid()) == "T" }, time.Second, 10*time.Millisecond)

	require.NoError(t, g.Continue())
	require.Eventually(t, func() bool { return procState(t, g.Pid()) != "T" }, time.Second, 10*time.Millisecond)

	require.NoError(t, g.Suspend())
	require.NoError(t, g.Kill())

	err = cmd.Wait()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, status.Signal())

	require.Eventually(t, func() bool {
		return errors.Is(syscall.Kill(-pgid, syscall.Signal(0)), syscall.ESRCH) || liveMembers(pgid) == 0
	}, time.Second, 10*time.Millisecond, "process group should be gone")
}

func TestLiveMembersIgnoresZombies(t *testing.T) {
	// The child exits immediately and stays a zombie until Wait.
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.Eventually(t, func() bool { return procState(t, pid) == "Z" }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, liveMembers(pid))
	require.NoError(t, syscall.Kill(-pid, syscall.Signal(0)), "a zombie still answers signal 0")
	require.NoError(t, cmd.Wait())
}

func TestSignalAfterExit(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	g := New(cmd)
	assert.NoError(t, g.Kill())
	assert.NoError(t, (*Group)(nil).Suspend())
}
