// Package process defines the contract between the launcher and the
// mechanisms that actually start a detached server process.
package process

import (
	"context"
	"os"
	"time"
)

// ProcessRef identifies a launched workload. Servers are named after the
// port they bind, so at most one server per port is tracked.
type ProcessRef struct {
	Name string
}

// ProcessState is a simplified view of a workload state.
type ProcessState string

const (
	ProcessStateRunning ProcessState = "running"
	ProcessStateExited  ProcessState = "exited"
	ProcessStateFailed  ProcessState = "failed"
	ProcessStateUnknown ProcessState = "unknown"
)

// ProcessSpec describes a workload to start.
type ProcessSpec struct {
	Ref         ProcessRef
	Command     []string
	Description string
	WorkingDir  string
	Environment map[string]string

	// Output receives the combined stdout and stderr of the workload.
	// nil discards it.
	Output *os.File
}

// Handle is what a backend reports after a successful start. It is plain
// data: callers may keep it, persist it, or drop it.
type Handle struct {
	Ref     ProcessRef
	Backend string
	PID     int
	Unit    string
	Started time.Time
}

// ProcessStatus describes a workload at the time it was queried.
type ProcessStatus struct {
	Ref   ProcessRef
	State ProcessState
	PID   int
	Unit  string
}

// ProcessBackend starts workloads that outlive the calling process.
//
// Describe and Stop take a Handle rather than a ProcessRef because the
// launcher exits right after Start; later invocations only have what was
// persisted.
type ProcessBackend interface {
	Kind() string
	Start(ctx context.Context, spec ProcessSpec) (*Handle, error)
	Describe(ctx context.Context, h Handle) (*ProcessStatus, error)
	Stop(ctx context.Context, h Handle) error
	Close() error
}
