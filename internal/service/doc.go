// Package service runs and supervises concurrent upload processes.
//
// Overview
// The Registry is the table of upload jobs. Spawn validates a job
// configuration and starts the upload executable through Launch, which
// returns a process Handle and the job Events.
//
// Every job has one goroutine which reaps the process and another one which
// reads the combined stdout and stderr line by line and publishes
//   - one EventOutput per line
//   - exactly one EventStatus
//   - EventFinished as the last event
//
// Output of a reaped process is read for a short time only, a background
// child holding the pipe does not keep the job running.
//
// Events is unbounded, the job goroutine never waits for the consumer.
//
// Registry.Poll is a non-blocking step draining all queued events into the
// job table. A Supervisor (or the terminal view) calls Poll periodically
// until no job is tracked.
//
// Data flow:
//
//	Supervisor.Do           Registry                 job goroutine
//	     |                      |                          |
//	Spawn(cfg) -------------->  | BuildArgs, Launch ------> | os/exec Start
//	     |                      |                          | read lines
//	tick -> Poll() --------->   | <------- Events ---------| Wait, status
//	     |                      | Observer.Line(entry)     | Finished
//	Cancel(id) -------------->  | Handle.Terminate         |
//	     | Observer.Idle()      |                          |
//
// Invariants:
//   - job ids are never reused
//   - a terminal status never changes, a late status from a stopped job is
//     ignored
//   - a finished job is visible in one Snapshot and removed on the next Poll
//   - only the goroutine calling Poll touches the Registry
package service
