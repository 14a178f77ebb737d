//go:build !windows

package service

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr starts the child in its own process group, so terminate
// reaches the processes it spawns as well.
func setProcAttr(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig unix.Signal) error {
	if err := unix.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	return p.Signal(sig)
}

// exitCode returns the negated signal number for a signaled process
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}

// ensureExecutable sets 0755 on a script without the execute bit. Failure is
// not fatal, the interpreter may not need it.
func ensureExecutable(ctx context.Context, path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode()&0o111 != 0 {
		return
	}
	if err := os.Chmod(path, 0o755); err != nil {
		slog.WarnContext(ctx, "can't make upload script executable", "path", path, "error", err)
		return
	}
	slog.DebugContext(ctx, "made upload script executable", "path", path)
}
