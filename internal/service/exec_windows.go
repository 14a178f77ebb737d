//go:build windows

package service

import (
	"context"
	"os"
	"os/exec"
)

func setProcAttr(_ *exec.Cmd) {}

func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func ensureExecutable(_ context.Context, _ string) {}
