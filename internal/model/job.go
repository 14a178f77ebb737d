package model

import (
	"fmt"
	"strings"
)

// JobConfig parametrizes one run of the upload executable against one folder.
// It is never changed once a job has been spawned.
type JobConfig struct {
	Folder          string
	Username        string
	Password        string
	Descriptor      string
	Origin          string
	Avatar          string
	ListID          string
	MultiFacePolicy int
	Warped          bool
	NameAsUserData  bool
}

// WithDefaults returns a copy of c where every empty field is taken from s.
// Boolean flags are kept as given.
func (c JobConfig) WithDefaults(s Settings) JobConfig {
	c.Username = or(c.Username, s.Username)
	c.Password = or(c.Password, s.Password)
	c.Descriptor = or(c.Descriptor, s.Descriptor)
	c.Origin = or(c.Origin, s.Origin)
	c.Avatar = or(c.Avatar, s.Avatar)
	c.ListID = or(c.ListID, s.ListID)
	if c.MultiFacePolicy == 0 {
		c.MultiFacePolicy = s.MultiFacePolicy
	}
	return c
}

func or(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Status is a job status. ExitCode is meaningful for StateFailed only,
// Message for StateError only.
type Status struct {
	State    State
	ExitCode int
	Message  string
}

func Running() Status               { return Status{State: StateRunning} }
func Succeeded() Status             { return Status{State: StateSucceeded} }
func Failed(exitCode int) Status    { return Status{State: StateFailed, ExitCode: exitCode} }
func Stopped() Status               { return Status{State: StateStopped} }
func Errored(message string) Status { return Status{State: StateError, Message: message} }

// Terminal reports whether no further transitions can happen
func (s Status) Terminal() bool {
	return s.State != StateRunning && s.State != ""
}

func (s Status) String() string {
	switch s.State {
	case StateFailed:
		return fmt.Sprintf("failed(%d)", s.ExitCode)
	case StateError:
		return "error: " + s.Message
	default:
		return string(s.State)
	}
}

// Describe returns a human message in the tone of the upload log
func (s Status) Describe() string {
	switch s.State {
	case StateRunning:
		return "Uploading..."
	case StateSucceeded:
		return "Upload completed successfully!"
	case StateFailed:
		return fmt.Sprintf("Upload failed with code %d", s.ExitCode)
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error running upload: " + s.Message
	default:
		return string(s.State)
	}
}
