// Package fake provides an in-memory ProcessBackend for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbrock/servelaunch/internal/process"
)

// Kind is reported by Backend.Kind.
const Kind = "fake"

// Backend records every spec it is asked to start and hands out
// increasing PIDs. Nothing is executed.
type Backend struct {
	mu      sync.Mutex
	nextPID int
	running map[int]bool

	// Started holds every spec passed to a successful Start.
	Started []process.ProcessSpec
	// Stopped holds every handle passed to Stop.
	Stopped []process.Handle

	// StartErr, when set, is returned by Start.
	StartErr error
}

var _ process.ProcessBackend = (*Backend)(nil)

// New creates a Backend whose first PID is 1000.
func New() *Backend {
	return &Backend{
		nextPID: 1000,
		running: make(map[int]bool),
	}
}

func (b *Backend) Kind() string { return Kind }

func (b *Backend) Close() error { return nil }

func (b *Backend) Start(ctx context.Context, spec process.ProcessSpec) (*process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return nil, b.StartErr
	}

	pid := b.nextPID
	b.nextPID++
	b.running[pid] = true
	b.Started = append(b.Started, spec)

	return &process.Handle{
		Ref:     spec.Ref,
		Backend: Kind,
		PID:     pid,
		Started: time.Now(),
	}, nil
}

func (b *Backend) Describe(ctx context.Context, h process.Handle) (*process.ProcessStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := process.ProcessStateExited
	if b.running[h.PID] {
		state = process.ProcessStateRunning
	}
	return &process.ProcessStatus{Ref: h.Ref, State: state, PID: h.PID, Unit: h.Unit}, nil
}

func (b *Backend) Stop(ctx context.Context, h process.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Stopped = append(b.Stopped, h)
	delete(b.running, h.PID)
	return nil
}

// Exit marks pid as no longer running, as if the server had died.
func (b *Backend) Exit(pid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, pid)
}
