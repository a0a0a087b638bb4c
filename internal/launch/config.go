// Package launch resolves how an inference server should be started and
// starts it through a process backend.
package launch

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// EnvEndpoint names the environment variable that overrides the endpoint.
const EnvEndpoint = "SERVER_URL"

const (
	DefaultEndpoint    = "http://10.198.31.25:8000"
	DefaultModelSize   = 7
	DefaultParallelism = 1
	DefaultProgram     = "python3"
	DefaultLogDir      = "logs"

	launchLogName = "launch.log"
	serverLogName = "server.log"
)

// ModelBaseDir is the directory holding llama-<size>b-hf model folders.
// Override at build time:
//
//	-ldflags "-X github.com/mbrock/servelaunch/internal/launch.ModelBaseDir=/models"
var ModelBaseDir = "/data/models"

// Defaults are the values substituted for anything the caller leaves out.
type Defaults struct {
	BaseDir     string
	Endpoint    string
	ModelSize   int
	Parallelism int
	Program     string
	ProgramArgs []string
	Flags       []string
	LogDir      string
}

// BuiltinDefaults returns the defaults compiled into the binary.
func BuiltinDefaults() Defaults {
	return Defaults{
		BaseDir:     ModelBaseDir,
		Endpoint:    DefaultEndpoint,
		ModelSize:   DefaultModelSize,
		Parallelism: DefaultParallelism,
		Program:     DefaultProgram,
		ProgramArgs: []string{"-m", "vllm.entrypoints.openai.api_server"},
		Flags:       []string{"--swap-space", "16", "--disable-log-requests", "--trust-remote-code"},
		LogDir:      DefaultLogDir,
	}
}

// LaunchConfig is everything needed to build the server command. It is
// produced once by Resolve and treated as read-only afterwards.
type LaunchConfig struct {
	Endpoint    string
	Host        string
	Port        int
	ModelSize   int
	Parallelism int
	ModelPath   string

	Program     string
	ProgramArgs []string
	Flags       []string

	// LogPath receives one line per invocation.
	LogPath string
	// ServerLogPath receives the server's combined output.
	ServerLogPath string
}

// Resolve builds a LaunchConfig from an endpoint override (empty means
// unset) and up to two positional values: model size and parallelism.
func Resolve(endpoint string, args []string, d Defaults) (LaunchConfig, error) {
	if len(args) > 2 {
		return LaunchConfig{}, fmt.Errorf("%w: expected at most 2 arguments (model size, parallelism), got %d", ErrConfig, len(args))
	}

	if endpoint == "" {
		endpoint = d.Endpoint
	}
	host, port, err := ParseEndpoint(endpoint)
	if err != nil {
		return LaunchConfig{}, err
	}

	size := d.ModelSize
	if len(args) > 0 {
		if size, err = parsePositive("model size", args[0]); err != nil {
			return LaunchConfig{}, err
		}
	}
	parallelism := d.Parallelism
	if len(args) > 1 {
		if parallelism, err = parsePositive("parallelism", args[1]); err != nil {
			return LaunchConfig{}, err
		}
	}
	if size <= 0 || parallelism <= 0 {
		return LaunchConfig{}, fmt.Errorf("%w: default model size and parallelism must be positive", ErrConfig)
	}

	program := d.Program
	if program == "" {
		return LaunchConfig{}, fmt.Errorf("%w: no server program configured", ErrConfig)
	}

	return LaunchConfig{
		Endpoint:      endpoint,
		Host:          host,
		Port:          port,
		ModelSize:     size,
		Parallelism:   parallelism,
		ModelPath:     ModelPath(d.BaseDir, size),
		Program:       program,
		ProgramArgs:   slices.Clone(d.ProgramArgs),
		Flags:         slices.Clone(d.Flags),
		LogPath:       filepath.Join(d.LogDir, launchLogName),
		ServerLogPath: filepath.Join(d.LogDir, serverLogName),
	}, nil
}

// ModelPath returns the model directory for a model size.
func ModelPath(baseDir string, size int) string {
	return filepath.Join(baseDir, fmt.Sprintf("llama-%db-hf", size))
}

// ParseEndpoint extracts host and port from an endpoint URL: the scheme is
// stripped, anything from the first '/', '?' or '#' on is dropped, and the
// remainder is split on its last colon. Without a port, http and https
// fall back to 80 and 443. IPv6 literals must be bracketed.
func ParseEndpoint(raw string) (host string, port int, err error) {
	s := strings.TrimSpace(raw)
	scheme := ""
	if i := strings.Index(s, "://"); i >= 0 {
		scheme = strings.ToLower(s[:i])
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}

	i := strings.LastIndex(s, ":")
	if i < 0 || strings.HasSuffix(s, "]") {
		switch scheme {
		case "http":
			port = 80
		case "https":
			port = 443
		default:
			return "", 0, fmt.Errorf("%w: endpoint %q has no port", ErrConfig, raw)
		}
		host = s
	} else {
		host = s[:i]
		port, err = strconv.Atoi(s[i+1:])
		if err != nil || port < 1 || port > 65535 {
			return "", 0, fmt.Errorf("%w: endpoint %q has invalid port %q", ErrConfig, raw, s[i+1:])
		}
	}

	if host == "" {
		return "", 0, fmt.Errorf("%w: endpoint %q has no host", ErrConfig, raw)
	}
	bracketed := strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]")
	if strings.Contains(host, ":") && !bracketed {
		return "", 0, fmt.Errorf("%w: endpoint %q: IPv6 hosts must be bracketed", ErrConfig, raw)
	}
	return host, port, nil
}

// parsePositive accepts only canonical decimal text, so the model path
// always carries the size exactly as given.
func parsePositive(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || strconv.Itoa(n) != s {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrConfig, name, s)
	}
	return n, nil
}
