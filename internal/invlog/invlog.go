// Package invlog appends one human-readable line per launch to a text log,
// and mirrors the same record to journald when it is reachable.
package invlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// Mode controls whether the log file may be created.
type Mode string

const (
	// ModeAlways creates the log directory and file as needed, and reports
	// write failures.
	ModeAlways Mode = "always"
	// ModeIfExists appends only to a file that already exists. A missing
	// file or a failed write is silently ignored.
	ModeIfExists Mode = "if-exists"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAlways, ModeIfExists:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown log mode %q (want %s or %s)", s, ModeAlways, ModeIfExists)
}

// Entry is one launch, as recorded in the log.
type Entry struct {
	ID          string
	Backend     string
	PID         int
	Host        string
	Port        int
	Model       string
	Parallelism int
	Command     string
	Time        time.Time
}

func (e Entry) fields() logrus.Fields {
	return logrus.Fields{
		"id":          e.ID,
		"backend":     e.Backend,
		"pid":         e.PID,
		"host":        e.Host,
		"port":        e.Port,
		"model":       e.Model,
		"parallelism": e.Parallelism,
		"command":     e.Command,
	}
}

// journalFields maps an entry to journald fields.
func (e Entry) journalFields() map[string]string {
	return map[string]string{
		"SERVELAUNCH_ID":          e.ID,
		"SERVELAUNCH_BACKEND":     e.Backend,
		"SERVELAUNCH_PID":         strconv.Itoa(e.PID),
		"SERVELAUNCH_HOST":        e.Host,
		"SERVELAUNCH_PORT":        strconv.Itoa(e.Port),
		"SERVELAUNCH_MODEL":       e.Model,
		"SERVELAUNCH_PARALLELISM": strconv.Itoa(e.Parallelism),
		"SERVELAUNCH_COMMAND":     e.Command,
	}
}

// MirrorFunc receives each entry after it is written to the file.
type MirrorFunc func(message string, fields map[string]string) error

// JournalMirror sends entries to journald, or does nothing when no journal
// socket is present.
func JournalMirror(message string, fields map[string]string) error {
	if !journal.Enabled() {
		return nil
	}
	return journal.Send(message, journal.PriInfo, fields)
}

// Log is an append-only invocation log.
type Log struct {
	Path string
	Mode Mode

	// Mirror, if set, is called for every appended entry. Its errors are
	// returned only in ModeAlways.
	Mirror MirrorFunc
}

// New returns a Log writing to path, mirrored to journald.
func New(path string, mode Mode) *Log {
	return &Log{Path: path, Mode: mode, Mirror: JournalMirror}
}

const message = "launched"

// Append writes e as a single line. The line is produced by one write on a
// descriptor opened with O_APPEND, so concurrent launchers never interleave.
func (l *Log) Append(e Entry) error {
	err := l.appendFile(e)
	if l.Mode == ModeIfExists {
		err = nil
	}
	if err != nil {
		return err
	}

	if l.Mirror != nil {
		if merr := l.Mirror(fmt.Sprintf("%s %s on %s:%d", message, e.Model, e.Host, e.Port), e.journalFields()); merr != nil && l.Mode == ModeAlways {
			return fmt.Errorf("mirroring invocation: %w", merr)
		}
	}
	return nil
}

func (l *Log) appendFile(e Entry) error {
	flags := os.O_WRONLY | os.O_APPEND
	if l.Mode != ModeIfExists {
		flags |= os.O_CREATE
		if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.Path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && l.Mode == ModeIfExists {
			return nil
		}
		return fmt.Errorf("opening invocation log: %w", err)
	}
	defer f.Close()

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := logrus.NewEntry(newFileLogger(f)).WithTime(ts).WithFields(e.fields())
	entry.Level = logrus.InfoLevel
	entry.Message = message
	line, err := entry.Bytes()
	if err != nil {
		return fmt.Errorf("formatting invocation: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing invocation log: %w", err)
	}
	return nil
}

func newFileLogger(f *os.File) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
