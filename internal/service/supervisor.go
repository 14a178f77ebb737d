package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gelecek/folder-uploader/internal/log"
	"github.com/gelecek/folder-uploader/internal/model"
)

const DefaultShutdownGrace = 5 * time.Second

// Supervisor drives the Registry: it polls it periodically and serializes
// spawn and cancel requests, so the Registry has a single writer.
type Supervisor struct {
	registry *Registry
	observer Observer
	interval time.Duration
	grace    time.Duration
	oneshot  bool
	pending  []model.JobConfig
	requests chan request
}

type requestOp int

const (
	opSpawn requestOp = iota
	opCancel
	opCancelAll
)

type request struct {
	op    requestOp
	cfg   model.JobConfig
	id    uint64
	reply chan reply
}

type reply struct {
	id  uint64
	n   int
	err error
}

func NewSupervisor(registry *Registry, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = model.DefaultPollInterval
	}
	return &Supervisor{
		registry: registry,
		observer: registry.observer,
		interval: interval,
		grace:    DefaultShutdownGrace,
		requests: make(chan request),
	}
}

// SetOneshot makes Do return once all jobs are finished
func (s *Supervisor) SetOneshot(oneshot bool) *Supervisor {
	s.oneshot = oneshot
	return s
}

// SetShutdownGrace sets how long Do waits for cancelled jobs on shutdown
// before it kills them.
func (s *Supervisor) SetShutdownGrace(d time.Duration) *Supervisor {
	s.grace = d
	return s
}

// Add queues jobs spawned on the start of Do. It must not be called
// concurrently with Do.
func (s *Supervisor) Add(cfgs ...model.JobConfig) *Supervisor {
	s.pending = append(s.pending, cfgs...)
	return s
}

// Registry returns the underlying registry. Reading it is safe once Do
// returned.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Spawn asks the running Do loop to start a job
func (s *Supervisor) Spawn(ctx context.Context, cfg model.JobConfig) (uint64, error) {
	r, err := s.call(ctx, request{op: opSpawn, cfg: cfg})
	return r.id, errors.Join(err, r.err)
}

// Cancel asks the running Do loop to stop a job
func (s *Supervisor) Cancel(ctx context.Context, id uint64) error {
	r, err := s.call(ctx, request{op: opCancel, id: id})
	return errors.Join(err, r.err)
}

// CancelAll asks the running Do loop to stop all jobs
func (s *Supervisor) CancelAll(ctx context.Context) (int, error) {
	r, err := s.call(ctx, request{op: opCancelAll})
	return r.n, err
}

func (s *Supervisor) call(ctx context.Context, req request) (reply, error) {
	req.reply = make(chan reply, 1)
	select {
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case s.requests <- req:
	}
	select {
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case r := <-req.reply:
		return r, nil
	}
}

// Do runs the supervisor loop. It multiplexes
//  1. requests from Spawn, Cancel and CancelAll
//  2. poll ticks reconciling the registry with the job goroutines
//  3. context cancellation, which stops all jobs and waits for them up to
//     the shutdown grace period
//
// In oneshot mode Do returns once no job is tracked. Otherwise it runs
// until ctx is cancelled.
func (s *Supervisor) Do(ctx context.Context) error {
	ctx = log.ContextAttrs(ctx, slog.String("session", uuid.NewString()))
	slog.DebugContext(ctx, "starting a supervisor", "interval", s.interval.String(), "oneshot", s.oneshot)

	for _, cfg := range s.pending {
		s.spawn(ctx, cfg)
	}
	s.pending = nil

	busy := s.registry.Len() > 0
	if s.oneshot && !busy {
		slog.InfoContext(ctx, "no upload jobs to run")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(context.WithoutCancel(ctx))
		case req := <-s.requests:
			s.handle(ctx, req)
			busy = busy || s.registry.Len() > 0
		case <-ticker.C:
			res := s.registry.Poll(ctx)
			if res.Continue {
				continue
			}
			if busy {
				busy = false
				s.observer.Idle()
				slog.InfoContext(ctx, "all upload jobs finished", "stats", s.registry.Stats())
			}
			if s.oneshot {
				return nil
			}
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, req request) {
	var r reply
	switch req.op {
	case opSpawn:
		r.id, r.err = s.spawn(ctx, req.cfg)
	case opCancel:
		r.err = s.registry.Cancel(ctx, req.id)
		if errors.Is(r.err, model.ErrCancelNoOp) {
			slog.InfoContext(ctx, "cancel ignored", "job_id", req.id, "reason", r.err)
		}
	case opCancelAll:
		r.n = s.registry.CancelAll(ctx)
	default:
		slog.WarnContext(ctx, "request not supported: ignoring", "op", req.op)
	}
	req.reply <- r
}

func (s *Supervisor) spawn(ctx context.Context, cfg model.JobConfig) (uint64, error) {
	id, err := s.registry.Spawn(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "job can't be spawned: ignoring", "folder", cfg.Folder, "error", err)
		s.observer.Line(Entry{Time: time.Now(), Folder: cfg.Folder, Kind: EntryError, Text: err.Error()})
	}
	return id, err
}

// shutdown cancels all jobs, then polls until they are gone or the grace
// period passes. Leftover processes are killed.
func (s *Supervisor) shutdown(ctx context.Context) error {
	slog.InfoContext(ctx, "supervisor shutting down", "active", s.registry.ActiveCount())
	busy := s.registry.Len() > 0
	if s.registry.ActiveCount() > 0 {
		s.registry.CancelAll(ctx)
	}

	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for s.registry.Poll(ctx).Continue {
		select {
		case <-ticker.C:
		case <-deadline.C:
			err := s.registry.Close(ctx)
			s.registry.Poll(ctx)
			return err
		}
	}
	if busy {
		s.observer.Idle()
	}
	return nil
}
