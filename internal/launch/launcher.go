package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mbrock/servelaunch/internal/invlog"
	"github.com/mbrock/servelaunch/internal/process"
	"github.com/mbrock/servelaunch/internal/record"
)

// Launcher starts a server for a LaunchConfig and reports where it went.
type Launcher struct {
	Backend process.ProcessBackend

	// Log and Records are optional.
	Log     *invlog.Log
	Records *record.Store

	// WorkDir anchors relative log paths and is the server's working
	// directory. Empty means the current directory.
	WorkDir     string
	Environment map[string]string

	Logger   logrus.FieldLogger
	LookPath func(file string) (string, error)
	NewID    func() string
	Now      func() time.Time
}

func (l *Launcher) logger() logrus.FieldLogger {
	if l.Logger != nil {
		return l.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

func (l *Launcher) workDir() (string, error) {
	if l.WorkDir != "" {
		return l.WorkDir, nil
	}
	return os.Getwd()
}

// Launch starts the server described by cfg and returns its handle. It does
// not wait for the server; a server that dies after starting still counts
// as launched.
func (l *Launcher) Launch(ctx context.Context, cfg LaunchConfig) (*process.Handle, error) {
	log := l.logger()

	argv := Command(cfg)
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = osexec.LookPath
	}
	program, err := lookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: server program %q: %v", ErrLaunch, argv[0], err)
	}
	execArgv := append([]string{program}, argv[1:]...)

	wd, err := l.workDir()
	if err != nil {
		return nil, fmt.Errorf("%w: working directory: %v", ErrLaunch, err)
	}
	serverLog := resolve(wd, cfg.ServerLogPath)
	out, err := openAppend(serverLog)
	if err != nil {
		return nil, fmt.Errorf("%w: server log: %v", ErrLaunch, err)
	}
	defer out.Close()

	log.WithFields(logrus.Fields{
		"backend": l.Backend.Kind(),
		"command": CommandLine(argv),
	}).Debug("starting server")

	h, err := l.Backend.Start(ctx, process.ProcessSpec{
		Ref:         process.ProcessRef{Name: strconv.Itoa(cfg.Port)},
		Command:     execArgv,
		Description: fmt.Sprintf("vLLM server for %s on %s:%d", filepath.Base(cfg.ModelPath), cfg.Host, cfg.Port),
		WorkingDir:  wd,
		Environment: l.Environment,
		Output:      out,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	id := l.newID()
	started := h.Started
	if started.IsZero() {
		started = l.now()
	}

	if l.Log != nil {
		entry := invlog.Entry{
			ID:          id,
			Backend:     h.Backend,
			PID:         h.PID,
			Host:        cfg.Host,
			Port:        cfg.Port,
			Model:       cfg.ModelPath,
			Parallelism: cfg.Parallelism,
			Command:     CommandLine(argv),
			Time:        started,
		}
		// Copy the log so a relative path follows WorkDir.
		il := *l.Log
		il.Path = resolve(wd, il.Path)
		if err := il.Append(entry); err != nil {
			log.WithError(err).Warn("invocation log not written")
		}
	}

	if l.Records != nil {
		rec := record.Record{
			ID:          id,
			Backend:     h.Backend,
			PID:         h.PID,
			Unit:        h.Unit,
			Endpoint:    cfg.Endpoint,
			Host:        cfg.Host,
			Port:        cfg.Port,
			ModelPath:   cfg.ModelPath,
			Parallelism: cfg.Parallelism,
			Command:     argv,
			WorkingDir:  wd,
			LogPath:     serverLog,
			Started:     started,
		}
		if err := l.Records.Save(rec); err != nil {
			log.WithError(err).Warn("launch record not saved")
		}
	}

	log.WithFields(logrus.Fields{
		"pid":  h.PID,
		"port": cfg.Port,
		"log":  serverLog,
	}).Info("server started")

	return h, nil
}

func (l *Launcher) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}

func (l *Launcher) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}
