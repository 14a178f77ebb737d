package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gelecek/folder-uploader/internal/log"
	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/observability"
)

// Registry is the table of upload jobs. It is not safe for a concurrent use,
// a single goroutine (Supervisor.Do or the terminal view) owns it. Job
// goroutines only communicate through their Events.
type Registry struct {
	cmd      Command
	defaults model.Settings
	observer Observer
	metrics  *observability.Metrics
	now      func() time.Time
	// how long the events of an exited process may stay unfinished
	exitGrace time.Duration

	lastID uint64
	jobs   []*job // ordered by id
	stats  Stats
}

type job struct {
	id      uint64
	config  model.JobConfig
	status  model.Status
	started time.Time
	stopped time.Time
	lines   int
	handle  *Handle
	events  *Events
	drained bool
	exited  time.Time // first Poll which saw the process exited
}

// JobView is a read only copy of a job
type JobView struct {
	ID      uint64
	Folder  string
	ListID  string
	Status  model.Status
	Lines   int
	Started time.Time
	Stopped time.Time
}

type PollResult struct {
	Active   int
	Tracked  int
	Continue bool
}

// Stats counts jobs by outcome since the Registry was created
type Stats struct {
	Spawned   int
	Succeeded int
	Failed    int
	Stopped   int
	Errored   int
}

// Unsuccessful is the number of finished jobs which did not succeed
func (s Stats) Unsuccessful() int {
	return s.Failed + s.Stopped + s.Errored
}

type RegistryOption func(*Registry)

// WithDefaults sets the settings filling empty job parameters
func WithDefaults(s model.Settings) RegistryOption {
	return func(r *Registry) { r.defaults = s }
}

func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// DefaultExitGrace is how long Poll waits for the status of a job whose
// process already exited before it gives up on the job goroutine.
const DefaultExitGrace = 5 * time.Second

func NewRegistry(cmd Command, opts ...RegistryOption) *Registry {
	r := &Registry{
		cmd:       cmd,
		defaults:  model.DefaultSettings(),
		observer:  nopObserver{},
		now:       time.Now,
		exitGrace: DefaultExitGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Spawn validates cfg and starts the upload. It does not wait for the child.
// Invalid configs are rejected with model.ErrInvalidConfig and get no id.
func (r *Registry) Spawn(ctx context.Context, cfg model.JobConfig) (uint64, error) {
	cfg = cfg.WithDefaults(r.defaults)
	args, err := BuildArgs(cfg)
	if err != nil {
		return 0, err
	}
	if err := checkFolder(cfg.Folder); err != nil {
		return 0, err
	}

	r.lastID++
	j := &job{
		id:      r.lastID,
		config:  cfg,
		status:  model.Running(),
		started: r.now(),
	}
	ctx = log.JobContext(ctx, j.id, cfg.Folder)
	r.info(j, "Starting upload from: "+cfg.Folder)
	slog.InfoContext(ctx, "starting upload", "list_id", cfg.ListID, "command", r.cmd.String(args))

	j.handle, j.events = Launch(ctx, r.cmd, args, cfg.Folder)
	r.jobs = append(r.jobs, j)
	r.stats.Spawned++
	r.metrics.RecordJobStarted(ctx)
	return j.id, nil
}

// Cancel terminates a running job and marks it stopped. A job which already
// finished yields model.ErrCancelNoOp.
func (r *Registry) Cancel(ctx context.Context, id uint64) error {
	j := r.find(id)
	if j == nil {
		return fmt.Errorf("%w: %d", model.ErrJobNotFound, id)
	}
	ctx = log.JobContext(ctx, j.id, j.config.Folder)
	if j.status.Terminal() || j.handle.Exited() {
		r.info(j, "Job already finished: "+j.config.Folder)
		return fmt.Errorf("%w: %d", model.ErrCancelNoOp, id)
	}
	if err := j.handle.Terminate(); err != nil {
		r.info(j, "Failed to stop job for folder: "+j.config.Folder)
		slog.ErrorContext(ctx, "terminating upload", "pid", j.handle.PID(), "error", err)
		return fmt.Errorf("terminating job %d: %w", id, err)
	}
	r.transition(ctx, j, model.Stopped())
	r.info(j, fmt.Sprintf("Stopped job for folder: %s (List ID: %s)", j.config.Folder, j.config.ListID))
	slog.InfoContext(ctx, "upload stopped", "pid", j.handle.PID())
	return nil
}

// CancelAll cancels every running job and returns how many were stopped
func (r *Registry) CancelAll(ctx context.Context) int {
	var stopped int
	for _, j := range r.jobs {
		if j.status.Terminal() || j.handle.Exited() {
			continue
		}
		err := r.Cancel(ctx, j.id)
		if err != nil {
			slog.WarnContext(ctx, "cancel failed", "job_id", j.id, "error", err)
			continue
		}
		stopped++
	}
	if stopped > 0 {
		r.info(nil, fmt.Sprintf("Stopped %d running upload job(s)", stopped))
	} else {
		r.info(nil, "No running jobs to stop.")
	}
	return stopped
}

// Close cancels all running jobs and kills the processes which are still
// alive.
func (r *Registry) Close(ctx context.Context) error {
	if r.ActiveCount() > 0 {
		r.CancelAll(ctx)
	}
	var errs []error
	for _, j := range r.jobs {
		if j.handle.Exited() {
			continue
		}
		slog.WarnContext(ctx, "killing upload", "job_id", j.id, "pid", j.handle.PID())
		if err := j.handle.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("killing job %d: %w", j.id, err))
		}
	}
	return errors.Join(errs...)
}

// Poll is one non-blocking reconciliation step. Jobs finished during the
// previous Poll are removed first, then all queued events are applied.
func (r *Registry) Poll(ctx context.Context) PollResult {
	r.prune()

	var active int
	for _, j := range r.jobs {
		if !j.drained {
			r.drain(ctx, j)
		}
		if !j.status.Terminal() {
			active++
		}
	}

	return PollResult{
		Active:   active,
		Tracked:  len(r.jobs),
		Continue: len(r.jobs) > 0,
	}
}

func (r *Registry) drain(ctx context.Context, j *job) {
	events, closed := j.events.Drain()
	jctx := log.JobContext(ctx, j.id, j.config.Folder)

	var lines int
	for _, ev := range events {
		switch ev.Kind {
		case EventOutput:
			j.lines++
			lines++
			r.emit(j, EntryOutput, ev.Text)
		case EventStatus:
			if !r.transition(jctx, j, ev.Status) {
				slog.DebugContext(jctx, "ignoring status of finished job", "status", ev.Status.String(), "current", j.status.String())
				continue
			}
			r.emit(j, EntryStatus, ev.Status.Describe())
			if ev.Status.State == model.StateError {
				r.emit(j, EntryError, ev.Status.Describe())
			}
		case EventFinished:
			j.drained = true
		}
	}
	r.metrics.RecordOutputLines(jctx, lines)

	switch {
	case j.drained:
	case closed:
		slog.WarnContext(jctx, "upload goroutine exited without finishing")
		r.abandon(jctx, j)
	case j.handle.Exited():
		now := r.now()
		if j.exited.IsZero() {
			j.exited = now
		}
		if now.Sub(j.exited) >= r.exitGrace {
			slog.WarnContext(jctx, "upload process exited, its goroutine did not finish", "pid", j.handle.PID(), "grace", r.exitGrace.String())
			r.abandon(jctx, j)
		}
	}
}

// abandon stops tracking the events of j, a job still running is errored
func (r *Registry) abandon(ctx context.Context, j *job) {
	j.drained = true
	if r.transition(ctx, j, model.Errored("worker exited without status")) {
		r.emit(j, EntryError, j.status.Describe())
	}
}

// transition moves j to status s unless j is already in a terminal state
func (r *Registry) transition(ctx context.Context, j *job, s model.Status) bool {
	if j.status.Terminal() {
		return false
	}
	j.status = s
	if !s.Terminal() {
		return true
	}

	j.stopped = r.now()
	switch s.State {
	case model.StateSucceeded:
		r.stats.Succeeded++
	case model.StateFailed:
		r.stats.Failed++
	case model.StateStopped:
		r.stats.Stopped++
	case model.StateError:
		r.stats.Errored++
	}
	r.metrics.RecordJobFinished(ctx, string(s.State), s.State == model.StateSucceeded, j.stopped.Sub(j.started))
	slog.InfoContext(ctx, "upload finished", "status", s.String(), "lines", j.lines)
	return true
}

func (r *Registry) prune() {
	kept := r.jobs[:0]
	for _, j := range r.jobs {
		if j.status.Terminal() && j.drained {
			continue
		}
		kept = append(kept, j)
	}
	clear(r.jobs[len(kept):])
	r.jobs = kept
}

// Snapshot returns all tracked jobs ordered by id
func (r *Registry) Snapshot() []JobView {
	out := make([]JobView, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobView{
			ID:      j.id,
			Folder:  j.config.Folder,
			ListID:  j.config.ListID,
			Status:  j.status,
			Lines:   j.lines,
			Started: j.started,
			Stopped: j.stopped,
		})
	}
	return out
}

// ActiveCount is the number of jobs in the running state
func (r *Registry) ActiveCount() int {
	var n int
	for _, j := range r.jobs {
		if !j.status.Terminal() {
			n++
		}
	}
	return n
}

// Len is the number of tracked jobs
func (r *Registry) Len() int {
	return len(r.jobs)
}

func (r *Registry) Stats() Stats {
	return r.stats
}

func (r *Registry) find(id uint64) *job {
	for _, j := range r.jobs {
		if j.id == id {
			return j
		}
	}
	return nil
}

func (r *Registry) emit(j *job, kind EntryKind, text string) {
	e := Entry{Time: r.now(), Kind: kind, Text: text}
	if j != nil {
		e.JobID = j.id
		e.Folder = j.config.Folder
	}
	r.observer.Line(e)
}

func (r *Registry) info(j *job, text string) {
	r.emit(j, EntryInfo, text)
}

func checkFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: folder %q: %w", model.ErrInvalidConfig, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", model.ErrInvalidConfig, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: folder %q is not readable: %w", model.ErrInvalidConfig, path, err)
	}
	return f.Close()
}
