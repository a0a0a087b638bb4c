package launch

import (
	"context"
	"fmt"

	"github.com/mbrock/servelaunch/internal/process"
	"github.com/mbrock/servelaunch/internal/record"
)

// OpenFunc opens the backend a record was launched with.
type OpenFunc func(ctx context.Context, kind string) (process.ProcessBackend, error)

// Manager reports on and stops previously launched servers, using the
// records the Launcher left behind.
type Manager struct {
	Records *record.Store
	Open    OpenFunc
}

// ServerStatus pairs a record with the current state of its process.
type ServerStatus struct {
	Record record.Record
	State  process.ProcessState
	Err    error
}

// backends opens each backend kind once and closes them all at the end.
type backends struct {
	open   OpenFunc
	opened map[string]process.ProcessBackend
}

func (bs *backends) get(ctx context.Context, kind string) (process.ProcessBackend, error) {
	if b, ok := bs.opened[kind]; ok {
		return b, nil
	}
	b, err := bs.open(ctx, kind)
	if err != nil {
		return nil, err
	}
	if bs.opened == nil {
		bs.opened = make(map[string]process.ProcessBackend)
	}
	bs.opened[kind] = b
	return b, nil
}

func (bs *backends) close() {
	for _, b := range bs.opened {
		_ = b.Close()
	}
}

// Status describes every recorded server. Per-server failures are reported
// in ServerStatus.Err and leave the state unknown.
func (m *Manager) Status(ctx context.Context) ([]ServerStatus, error) {
	recs, err := m.Records.List()
	if err != nil {
		return nil, err
	}

	bs := &backends{open: m.Open}
	defer bs.close()

	out := make([]ServerStatus, 0, len(recs))
	for _, r := range recs {
		st := ServerStatus{Record: r, State: process.ProcessStateUnknown}
		b, err := bs.get(ctx, r.Backend)
		if err != nil {
			st.Err = err
			out = append(out, st)
			continue
		}
		ps, err := b.Describe(ctx, r.Handle())
		if err != nil {
			st.Err = err
		} else {
			st.State = ps.State
		}
		out = append(out, st)
	}
	return out, nil
}

// Stop stops the server recorded for port and forgets its record.
func (m *Manager) Stop(ctx context.Context, port int) (*record.Record, error) {
	r, err := m.Records.Load(port)
	if err != nil {
		return nil, err
	}

	bs := &backends{open: m.Open}
	defer bs.close()

	b, err := bs.get(ctx, r.Backend)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", r.Backend, err)
	}
	if err := b.Stop(ctx, r.Handle()); err != nil {
		return nil, fmt.Errorf("stopping server on port %d: %w", port, err)
	}
	if err := m.Records.Remove(port); err != nil {
		return r, fmt.Errorf("removing record: %w", err)
	}
	return r, nil
}
