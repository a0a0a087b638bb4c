package systemd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

// ErrNoSuchUnit is returned by StopUnit for a unit systemd does not have
// loaded, such as a transient unit collected after its process exited.
var ErrNoSuchUnit = errors.New("unit not loaded")

const dbusNoSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// Systemd provides the unit operations the launcher needs via D-Bus.
type Systemd interface {
	// GetUnit retrieves a single unit's properties.
	GetUnit(ctx context.Context, name UnitName) (*Unit, error)

	// StopUnit gracefully stops a unit, blocking until complete.
	StopUnit(ctx context.Context, name UnitName) error

	// StartTransient creates and starts a transient unit, blocking until
	// the start job completes.
	StartTransient(ctx context.Context, spec TransientSpec) error

	// Close releases the D-Bus connection.
	Close() error
}

// systemdConn implements Systemd using go-systemd/dbus.
type systemdConn struct {
	conn *dbus.Conn
}

// ConnectUserSystemd connects to the user's systemd instance.
func ConnectUserSystemd(ctx context.Context) (Systemd, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to user systemd: %w", err)
	}
	return &systemdConn{conn: conn}, nil
}

func (s *systemdConn) Close() error {
	s.conn.Close()
	return nil
}

func (s *systemdConn) GetUnit(ctx context.Context, name UnitName) (*Unit, error) {
	unitProps, err := s.conn.GetUnitPropertiesContext(ctx, name.String())
	if err != nil {
		return nil, fmt.Errorf("getting unit properties: %w", err)
	}

	unit := &Unit{Name: name}
	if st, ok := unitProps["ActiveState"].(string); ok {
		unit.State = UnitState(st)
	}
	if ts, ok := unitProps["ActiveEnterTimestamp"].(uint64); ok && ts > 0 {
		unit.Started = time.Unix(int64(ts/1000000), int64((ts%1000000)*1000))
	}

	serviceProps, err := s.conn.GetUnitTypePropertiesContext(ctx, name.String(), "Service")
	if err == nil {
		if pid, ok := serviceProps["MainPID"].(uint32); ok {
			unit.MainPID = pid
		}
		if es, ok := serviceProps["ExecMainStatus"].(int32); ok {
			unit.ExitStatus = es
		}
	}

	return unit, nil
}

func (s *systemdConn) StopUnit(ctx context.Context, name UnitName) error {
	resultChan := make(chan string, 1)
	_, err := s.conn.StopUnitContext(ctx, name.String(), "replace", resultChan)
	if err != nil {
		if isNoSuchUnit(err) {
			return fmt.Errorf("stopping %s: %w", name, ErrNoSuchUnit)
		}
		return fmt.Errorf("stopping unit: %w", err)
	}

	select {
	case result := <-resultChan:
		if result != "done" {
			return fmt.Errorf("stop job failed: %s", result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *systemdConn) StartTransient(ctx context.Context, spec TransientSpec) error {
	resultChan := make(chan string, 1)
	_, err := s.conn.StartTransientUnitContext(
		ctx,
		spec.Unit.String(),
		"replace",
		transientProperties(spec),
		resultChan,
	)
	if err != nil {
		return fmt.Errorf("starting transient unit: %w", err)
	}

	select {
	case result := <-resultChan:
		// With Type=exec, "failed" covers a missing or non-executable
		// binary, which is exactly what callers need to hear about.
		if result != "done" {
			return fmt.Errorf("start job for %s: %s", spec.Unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isNoSuchUnit(err error) bool {
	var de godbus.Error
	if errors.As(err, &de) {
		return de.Name == dbusNoSuchUnit
	}
	var dep *godbus.Error
	if errors.As(err, &dep) {
		return dep.Name == dbusNoSuchUnit
	}
	return false
}

// transientProperties translates a TransientSpec into unit properties.
func transientProperties(spec TransientSpec) []dbus.Property {
	props := []dbus.Property{
		dbus.PropExecStart(spec.Command, false),
		dbus.PropDescription(spec.Description),
	}

	if spec.ServiceType != "" {
		props = append(props, dbus.PropType(spec.ServiceType))
	}

	if spec.WorkingDir != "" {
		props = append(props, dbus.Property{
			Name:  "WorkingDirectory",
			Value: godbus.MakeVariant(spec.WorkingDir),
		})
	}

	if len(spec.Environment) > 0 {
		envList := make([]string, 0, len(spec.Environment))
		for k, v := range spec.Environment {
			envList = append(envList, k+"="+v)
		}
		sort.Strings(envList)
		props = append(props, dbus.Property{
			Name:  "Environment",
			Value: godbus.MakeVariant(envList),
		})
	}

	if spec.Stdout != nil {
		props = append(props, dbus.Property{
			Name:  "StandardOutputFileDescriptor",
			Value: godbus.MakeVariant(godbus.UnixFD(*spec.Stdout)),
		})
	} else {
		props = append(props, dbus.Property{
			Name:  "StandardOutput",
			Value: godbus.MakeVariant("journal"),
		})
	}

	if spec.Stderr != nil {
		props = append(props, dbus.Property{
			Name:  "StandardErrorFileDescriptor",
			Value: godbus.MakeVariant(godbus.UnixFD(*spec.Stderr)),
		})
	} else {
		props = append(props, dbus.Property{
			Name:  "StandardError",
			Value: godbus.MakeVariant("journal"),
		})
	}

	if spec.Collect {
		props = append(props, dbus.Property{
			Name:  "CollectMode",
			Value: godbus.MakeVariant("inactive-or-failed"),
		})
	}

	return props
}
