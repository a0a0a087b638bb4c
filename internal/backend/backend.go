// Package backend selects the mechanism used to start detached servers.
package backend

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/mbrock/servelaunch/internal/process"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindAuto    Kind = "auto"
	KindExec    Kind = "exec"
	KindSystemd Kind = "systemd"
)

// EnvBackend names the environment variable consulted by Default.
const EnvBackend = "SERVELAUNCH_BACKEND"

type opener func(ctx context.Context) (process.ProcessBackend, error)

var openers = map[Kind]opener{}

// Register makes a backend implementation available to Open.
// Implementations should call this from init().
func Register(kind Kind, o opener) {
	if kind == "" || kind == KindAuto {
		panic("backend: register with reserved kind " + string(kind))
	}
	if o == nil {
		panic("backend: register with nil opener")
	}
	if _, exists := openers[kind]; exists {
		panic("backend: duplicate register for kind " + string(kind))
	}
	openers[kind] = o
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(openers))
	for k := range openers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Open constructs a backend of the requested kind. An empty kind means exec;
// KindAuto probes for a systemd user manager.
func Open(ctx context.Context, kind Kind) (process.ProcessBackend, error) {
	switch kind {
	case "":
		kind = KindExec
	case KindAuto:
		kind = DetectKind()
	}
	o, ok := openers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
	return o(ctx)
}

// Default opens the backend named by SERVELAUNCH_BACKEND, or exec.
func Default(ctx context.Context) (process.ProcessBackend, error) {
	return Open(ctx, Kind(os.Getenv(EnvBackend)))
}

// DetectKind returns systemd if the systemd user service is available on
// D-Bus, otherwise exec.
func DetectKind() Kind {
	if _, ok := openers[KindSystemd]; ok && hasSystemdUserService() {
		return KindSystemd
	}
	return KindExec
}

// hasSystemdUserService checks whether org.freedesktop.systemd1 owns a name
// on the session bus. Machines with D-Bus but another init system fail this.
func hasSystemdUserService() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	var owner string
	err = conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus").
		Call("org.freedesktop.DBus.GetNameOwner", 0, "org.freedesktop.systemd1").
		Store(&owner)

	return err == nil && owner != ""
}
