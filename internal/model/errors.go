package model

import (
	"errors"
)

var (
	// ErrInvalidConfig is returned before a process is started when a job
	// parameter is missing or malformed
	ErrInvalidConfig = errors.New("invalid job config")
	// ErrSpawn means the upload executable could not be started
	ErrSpawn = errors.New("spawn failed")
	// ErrPersist means settings could not be written
	ErrPersist = errors.New("persisting settings failed")
	// ErrCancelNoOp is informational: the job was already in a terminal state
	ErrCancelNoOp  = errors.New("job already finished")
	ErrJobNotFound = errors.New("job not found")
)
