// Package systemd starts servers as transient units of the user's systemd
// instance, which keeps them alive independently of the launching shell.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbrock/servelaunch/internal/backend"
	"github.com/mbrock/servelaunch/internal/process"
)

// Kind is the name this backend registers under.
const Kind = "systemd"

func init() {
	backend.Register(backend.KindSystemd, func(ctx context.Context) (process.ProcessBackend, error) {
		sd, err := ConnectUserSystemd(ctx)
		if err != nil {
			return nil, err
		}
		return NewSystemdBackend(sd), nil
	})
}

// SystemdBackend adapts the low-level Systemd interface to ProcessBackend.
type SystemdBackend struct {
	systemd Systemd
}

var _ process.ProcessBackend = (*SystemdBackend)(nil)

// NewSystemdBackend wraps a Systemd connection in a ProcessBackend.
func NewSystemdBackend(sd Systemd) *SystemdBackend {
	return &SystemdBackend{systemd: sd}
}

func (b *SystemdBackend) Kind() string { return Kind }

// Start translates a ProcessSpec into a transient unit and reports the
// unit's main PID once the start job has completed.
func (b *SystemdBackend) Start(ctx context.Context, spec process.ProcessSpec) (*process.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	unit := ServerUnit(spec.Ref.Name)

	tSpec := TransientSpec{
		Unit:        unit,
		ServiceType: "exec",
		WorkingDir:  spec.WorkingDir,
		Description: spec.Description,
		Environment: spec.Environment,
		Command:     spec.Command,
		Collect:     true,
	}
	if spec.Output != nil {
		fd := int(spec.Output.Fd())
		tSpec.Stdout = &fd
		tSpec.Stderr = &fd
	}

	if err := b.systemd.StartTransient(ctx, tSpec); err != nil {
		return nil, err
	}

	u, err := b.systemd.GetUnit(ctx, unit)
	if err != nil {
		return nil, err
	}
	if u.MainPID == 0 {
		return nil, fmt.Errorf("%s has no main process (state %s, exit status %d)", unit, u.State, u.ExitStatus)
	}

	started := u.Started
	if started.IsZero() {
		started = time.Now()
	}
	return &process.Handle{
		Ref:     spec.Ref,
		Backend: Kind,
		PID:     int(u.MainPID),
		Unit:    unit.String(),
		Started: started,
	}, nil
}

func (b *SystemdBackend) Describe(ctx context.Context, h process.Handle) (*process.ProcessStatus, error) {
	unit := unitForHandle(h)
	u, err := b.systemd.GetUnit(ctx, unit)
	if err != nil {
		return nil, err
	}
	return &process.ProcessStatus{
		Ref:   h.Ref,
		State: processStateFromUnit(u.State, u.ExitStatus),
		PID:   int(u.MainPID),
		Unit:  unit.String(),
	}, nil
}

// Stop stops the server's unit. A unit that has already exited, or has
// been collected since, counts as stopped.
func (b *SystemdBackend) Stop(ctx context.Context, h process.Handle) error {
	unit := unitForHandle(h)
	if u, err := b.systemd.GetUnit(ctx, unit); err == nil {
		switch u.State {
		case UnitStateInactive, UnitStateFailed:
			return nil
		}
	}
	err := b.systemd.StopUnit(ctx, unit)
	if errors.Is(err, ErrNoSuchUnit) {
		return nil
	}
	return err
}

// Close releases the underlying Systemd connection.
func (b *SystemdBackend) Close() error {
	if b.systemd == nil {
		return nil
	}
	return b.systemd.Close()
}

func unitForHandle(h process.Handle) UnitName {
	if h.Unit != "" {
		return UnitName(h.Unit)
	}
	return ServerUnit(h.Ref.Name)
}

func processStateFromUnit(state UnitState, exitStatus int32) process.ProcessState {
	switch state {
	case UnitStateActive, UnitStateActivating, UnitStateDeactivating:
		return process.ProcessStateRunning
	case UnitStateFailed:
		return process.ProcessStateFailed
	default:
		if exitStatus == 0 {
			return process.ProcessStateExited
		}
		return process.ProcessStateFailed
	}
}
