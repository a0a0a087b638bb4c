package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mbrock/servelaunch/internal/backend"
	"github.com/mbrock/servelaunch/internal/process"
)

// Kind is the name this backend registers under.
const Kind = "exec"

func init() {
	backend.Register(backend.KindExec, func(ctx context.Context) (process.ProcessBackend, error) {
		return New(), nil
	})
}

// Backend is a portable ProcessBackend implementation backed by plain OS processes.
type Backend struct{}

var _ process.ProcessBackend = (*Backend)(nil)

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Kind() string { return Kind }

func (b *Backend) Close() error { return nil }

// Start launches spec.Command detached from the caller's session. The
// context only bounds the start itself; cancelling it later does not touch
// the running server.
func (b *Backend) Start(ctx context.Context, spec process.ProcessSpec) (*process.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := osexec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = append(os.Environ(), envList(spec.Environment)...)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}

	// New session: no controlling terminal, and the PID doubles as the
	// process group ID so Stop can reach any children the server forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &process.Handle{
		Ref:     spec.Ref,
		Backend: Kind,
		PID:     cmd.Process.Pid,
		Started: time.Now(),
	}
	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("releasing pid %d: %w", h.PID, err)
	}
	return h, nil
}

// Describe probes the recorded PID with signal 0. A live PID whose start
// time does not match the handle counts as exited.
func (b *Backend) Describe(ctx context.Context, h process.Handle) (*process.ProcessStatus, error) {
	_ = ctx
	st := &process.ProcessStatus{Ref: h.Ref, PID: h.PID}
	if h.PID <= 0 {
		st.State = process.ProcessStateUnknown
		return st, nil
	}

	err := unix.Kill(h.PID, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		st.State = process.ProcessStateRunning
		if !sameProcess(h.PID, h.Started) {
			st.State = process.ProcessStateExited
		}
	case errors.Is(err, unix.ESRCH):
		st.State = process.ProcessStateExited
	default:
		return nil, fmt.Errorf("probing pid %d: %w", h.PID, err)
	}
	return st, nil
}

// Stop sends SIGTERM to the server's process group, falling back to the
// process itself. A process that is already gone is not an error, and
// neither is a PID now held by some other process, which is left alone.
func (b *Backend) Stop(ctx context.Context, h process.Handle) error {
	_ = ctx
	if h.PID <= 0 {
		return fmt.Errorf("no pid recorded for %s", h.Ref.Name)
	}
	if !sameProcess(h.PID, h.Started) {
		return nil
	}

	if err := unix.Kill(-h.PID, unix.SIGTERM); err == nil {
		return nil
	}
	err := unix.Kill(h.PID, unix.SIGTERM)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("signalling pid %d: %w", h.PID, err)
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
