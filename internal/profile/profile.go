// Package profile loads optional launch profiles and dotenv files.
//
// Configuration is layered:
//  1. Built-in defaults (launch.BuiltinDefaults)
//  2. YAML profile (--config)
//  3. Dotenv file (--env-file), never overriding variables already set
//  4. Environment (SERVER_URL, SERVELAUNCH_BACKEND)
//  5. Positional arguments
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mbrock/servelaunch/internal/launch"
)

// Profile overrides launch defaults. Zero values leave the default alone.
type Profile struct {
	BaseDir     string   `yaml:"base_dir"`
	Endpoint    string   `yaml:"endpoint"`
	ModelSize   int      `yaml:"model_size"`
	Parallelism int      `yaml:"parallelism"`
	Program     string   `yaml:"program"`
	ProgramArgs []string `yaml:"program_args"`
	Flags       []string `yaml:"flags"`
	LogDir      string   `yaml:"log_dir"`
	LogMode     string   `yaml:"log_mode"`
	Backend     string   `yaml:"backend"`
	WorkDir     string   `yaml:"workdir"`

	Environment map[string]string `yaml:"environment"`
}

// Load reads a profile from path. Unknown keys are rejected.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: profile: %v", launch.ErrConfig, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.ModelSize < 0 {
		return fmt.Errorf("%w: profile model_size must be positive", launch.ErrConfig)
	}
	if p.Parallelism < 0 {
		return fmt.Errorf("%w: profile parallelism must be positive", launch.ErrConfig)
	}
	if p.Endpoint != "" {
		if _, _, err := launch.ParseEndpoint(p.Endpoint); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns d with the profile's non-zero values laid over it.
// Slices in the profile replace, not extend, the defaults.
func (p *Profile) Apply(d launch.Defaults) launch.Defaults {
	if p == nil {
		return d
	}
	if p.BaseDir != "" {
		d.BaseDir = p.BaseDir
	}
	if p.Endpoint != "" {
		d.Endpoint = p.Endpoint
	}
	if p.ModelSize > 0 {
		d.ModelSize = p.ModelSize
	}
	if p.Parallelism > 0 {
		d.Parallelism = p.Parallelism
	}
	if p.Program != "" {
		d.Program = p.Program
	}
	if p.ProgramArgs != nil {
		d.ProgramArgs = p.ProgramArgs
	}
	if p.Flags != nil {
		d.Flags = p.Flags
	}
	if p.LogDir != "" {
		d.LogDir = p.LogDir
	}
	return d
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment. Variables that are already set keep their values.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
