package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gelecek/folder-uploader/internal/model"
)

// outputDrainTimeout bounds reading of the output once the process exited.
// A child left running in background may keep the pipe open forever.
const outputDrainTimeout = time.Second

// Handle is the process of one running job. The process is reaped by its own
// goroutine, Done is closed afterwards.
type Handle struct {
	cmd     *exec.Cmd
	pid     int
	once    sync.Once
	done    chan struct{}
	waitErr error // valid after done is closed
}

func (h *Handle) PID() int {
	return h.pid
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has been reaped or never started
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Terminate asks the process to stop. It is a no-op for an exited process.
func (h *Handle) Terminate() error {
	if h.Exited() || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	err := terminate(h.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Kill stops the process immediately
func (h *Handle) Kill() error {
	if h.Exited() || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	err := kill(h.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (h *Handle) markDone() {
	h.once.Do(func() { close(h.done) })
}

// Launch starts cmd with args in the working directory dir. Launch never
// fails: start errors are reported as a model.StateError status followed by
// EventFinished.
//
// stdout and stderr of the process share one pipe, so the output lines keep
// the order they were written in. A goroutine reads the lines and publishes
// them to the returned Events. Another goroutine reaps the process, after
// that the output is read for at most outputDrainTimeout before the status
// is published. EventFinished is always the last event.
func Launch(ctx context.Context, cmd Command, args []string, dir string) (*Handle, *Events) {
	events := newEvents()
	h := &Handle{done: make(chan struct{})}

	fail := func(err error) (*Handle, *Events) {
		err = fmt.Errorf("%w: %w", model.ErrSpawn, err)
		slog.ErrorContext(ctx, "starting upload", "error", err)
		events.publish(Event{Kind: EventStatus, Status: model.Errored(err.Error())})
		events.publish(Event{Kind: EventFinished})
		events.close()
		h.markDone()
		return h, events
	}

	ensureExecutable(ctx, cmd.Script)

	path, argv := cmd.Argv(args)
	c := exec.Command(path, argv...)
	c.Dir = dir
	c.Env = append(os.Environ(), cmd.Env...)
	setProcAttr(c)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fail(err)
	}
	c.Stdout = pw
	c.Stderr = pw

	if err := c.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fail(err)
	}
	// the child holds its own copy
	_ = pw.Close()

	h.cmd = c
	h.pid = c.Process.Pid
	slog.DebugContext(ctx, "upload started", "pid", h.pid)

	go h.wait(ctx, pr)
	go h.run(ctx, pr, events)
	return h, events
}

// wait reaps the process and then limits how long the output may stay open
func (h *Handle) wait(ctx context.Context, pr *os.File) {
	h.waitErr = h.cmd.Wait()
	h.markDone()
	if err := pr.SetReadDeadline(time.Now().Add(outputDrainTimeout)); err != nil && !errors.Is(err, os.ErrClosed) {
		slog.DebugContext(ctx, "pipe without deadline support, closing it later", "error", err)
		time.AfterFunc(outputDrainTimeout, func() { _ = pr.Close() })
	}
}

func (h *Handle) run(ctx context.Context, pr *os.File, events *Events) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "upload goroutine panicked", "panic", r)
			events.publish(Event{Kind: EventStatus, Status: model.Errored(fmt.Sprint(r))})
		}
		events.publish(Event{Kind: EventFinished})
		events.close()
	}()

	reader := bufio.NewReader(pr)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			events.publish(Event{Kind: EventOutput, Text: strings.ToValidUTF8(line, "\uFFFD")})
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, os.ErrClosed):
				slog.WarnContext(ctx, "upload exited, its output is still held open by a child process", "pid", h.pid)
			default:
				slog.ErrorContext(ctx, "reading upload output", "error", err)
			}
			break
		}
	}
	_ = pr.Close()

	<-h.done
	status := exitStatus(h.cmd.ProcessState, h.waitErr)
	slog.DebugContext(ctx, "upload exited", "pid", h.pid, "status", status.String())
	events.publish(Event{Kind: EventStatus, Status: status})
}

func exitStatus(state *os.ProcessState, err error) model.Status {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return model.Succeeded()
	case errors.As(err, &exitErr):
		return model.Failed(exitCode(exitErr.ProcessState))
	case state != nil && !state.Success():
		return model.Failed(exitCode(state))
	default:
		return model.Errored(err.Error())
	}
}
