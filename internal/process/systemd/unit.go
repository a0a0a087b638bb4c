package systemd

import (
	"fmt"
	"time"
)

const unitPrefix = "servelaunch-"

// UnitName is a typed systemd unit name with semantic methods.
type UnitName string

// ServerUnit returns the unit name for a server identified by name
// (the port it binds).
func ServerUnit(name string) UnitName {
	return UnitName(fmt.Sprintf("%s%s.service", unitPrefix, name))
}

// String returns the unit name as a string.
func (u UnitName) String() string {
	return string(u)
}

// UnitState represents the systemd active state.
type UnitState string

const (
	UnitStateActive       UnitState = "active"
	UnitStateActivating   UnitState = "activating"
	UnitStateDeactivating UnitState = "deactivating"
	UnitStateInactive     UnitState = "inactive"
	UnitStateFailed       UnitState = "failed"
)

// Unit represents a live systemd unit with its properties.
type Unit struct {
	Name       UnitName
	State      UnitState
	Started    time.Time
	MainPID    uint32
	ExitStatus int32
}

// TransientSpec defines properties for starting a transient unit.
type TransientSpec struct {
	Unit        UnitName
	ServiceType string // "exec", "simple", etc.
	WorkingDir  string
	Description string
	Environment map[string]string
	Command     []string
	Collect     bool // unload unit after it exits

	// Output file descriptors; nil means the journal. Stdin is always
	// /dev/null.
	Stdout *int
	Stderr *int
}
