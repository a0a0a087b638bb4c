// Package record persists what the launcher knows about each server it
// started, so that later invocations can report on or stop it.
package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbrock/servelaunch/internal/dirs"
	"github.com/mbrock/servelaunch/internal/process"
)

// ErrNotFound is returned when no record exists for a port.
var ErrNotFound = errors.New("no launch record")

// Record describes one launch.
type Record struct {
	ID          string    `yaml:"id"`
	Backend     string    `yaml:"backend"`
	PID         int       `yaml:"pid"`
	Unit        string    `yaml:"unit,omitempty"`
	Endpoint    string    `yaml:"endpoint"`
	Host        string    `yaml:"host"`
	Port        int       `yaml:"port"`
	ModelPath   string    `yaml:"model_path"`
	Parallelism int       `yaml:"parallelism"`
	Command     []string  `yaml:"command"`
	WorkingDir  string    `yaml:"working_dir"`
	LogPath     string    `yaml:"log_path"`
	Started     time.Time `yaml:"started"`
}

// Handle rebuilds the backend handle the record was made from.
func (r Record) Handle() process.Handle {
	return process.Handle{
		Ref:     process.ProcessRef{Name: strconv.Itoa(r.Port)},
		Backend: r.Backend,
		PID:     r.PID,
		Unit:    r.Unit,
		Started: r.Started,
	}
}

// Store keeps records as YAML files named after the port.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// DefaultStore returns a store in the user's state directory.
func DefaultStore() *Store {
	return NewStore(dirs.LaunchesDir())
}

func (s *Store) path(port int) string {
	return filepath.Join(s.Dir, strconv.Itoa(port)+".yaml")
}

// Save writes r, replacing any previous record for the same port.
func (s *Store) Save(r Record) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating record dir: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".record-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(r.Port))
}

// Load reads the record for port.
func (s *Store) Load(port int) (*Record, error) {
	data, err := os.ReadFile(s.path(port))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("port %d: %w", port, ErrNotFound)
		}
		return nil, err
	}
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding record for port %d: %w", port, err)
	}
	return &r, nil
}

// List returns all records ordered by port. Unreadable files are skipped.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			continue
		}
		r, err := s.Load(port)
		if err != nil {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
}

// Remove deletes the record for port. Removing a missing record is not an error.
func (s *Store) Remove(port int) error {
	err := os.Remove(s.path(port))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
