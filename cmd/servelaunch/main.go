// servelaunch - start a detached vLLM inference server
//
// Usage:
//
//	servelaunch [flags] [size [parallelism]]   Launch llama-<size>b-hf, print the PID
//	servelaunch status                         Show launched servers
//	servelaunch stop <port>                    Stop the server bound to port
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mbrock/servelaunch/internal/backend"
	_ "github.com/mbrock/servelaunch/internal/backend/all"
	"github.com/mbrock/servelaunch/internal/invlog"
	"github.com/mbrock/servelaunch/internal/launch"
	"github.com/mbrock/servelaunch/internal/process"
	"github.com/mbrock/servelaunch/internal/profile"
	"github.com/mbrock/servelaunch/internal/record"
)

// Global flags
var (
	backendFlag string
	configFlag  string
	envFileFlag string
	logModeFlag string
	workDirFlag string
	dryRunFlag  bool
	verboseFlag bool
)

var logger = logrus.New()

func main() {
	flag.StringVar(&backendFlag, "backend", "", "Backend: "+kindList()+" (overrides "+backend.EnvBackend+")")
	flag.StringVarP(&configFlag, "config", "c", "", "YAML launch profile")
	flag.StringVar(&envFileFlag, "env-file", "", "Load environment variables from a dotenv file")
	flag.StringVar(&logModeFlag, "log-mode", "", "Invocation log: always, if-exists (default always)")
	flag.StringVarP(&workDirFlag, "workdir", "C", "", "Working directory for the server and relative log paths")
	flag.BoolVarP(&dryRunFlag, "dry-run", "n", false, "Print the server command instead of running it")
	flag.BoolVarP(&verboseFlag, "verbose", "v", false, "Log progress to stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `servelaunch - start a detached vLLM inference server

Usage:
  servelaunch [flags] [size [parallelism]]   Launch llama-<size>b-hf (default 7, parallelism 1)
  servelaunch status                         Show launched servers
  servelaunch stop <port>                    Stop the server bound to port

Environment:
  %s   Endpoint URL to bind (default %s)

Flags:
`, launch.EnvEndpoint, launch.DefaultEndpoint)
		flag.PrintDefaults()
	}
	flag.Parse()

	setupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "status":
			cmdStatus(ctx)
			return
		case "stop":
			if len(args) != 2 {
				usage("usage: servelaunch stop <port>")
			}
			cmdStop(ctx, args[1])
			return
		}
	}
	cmdLaunch(ctx, args)
}

func setupLogger() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if verboseFlag {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:    !term.IsTerminal(int(os.Stderr.Fd())),
		DisableTimestamp: true,
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func usage(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(2)
}

// exitErr reports err, using exit status 2 for configuration problems.
func exitErr(err error) {
	if errors.Is(err, launch.ErrConfig) {
		usage("%v", err)
	}
	fatal("%v", err)
}

func loadProfile() *profile.Profile {
	if configFlag == "" {
		return nil
	}
	p, err := profile.Load(configFlag)
	if err != nil {
		exitErr(err)
	}
	return p
}

func cmdLaunch(ctx context.Context, args []string) {
	p := loadProfile()

	if envFileFlag != "" {
		if err := profile.LoadEnvFile(envFileFlag); err != nil {
			fatal("%v", err)
		}
	}

	cfg, err := launch.Resolve(os.Getenv(launch.EnvEndpoint), args, p.Apply(launch.BuiltinDefaults()))
	if err != nil {
		exitErr(err)
	}

	if dryRunFlag {
		fmt.Println(launch.CommandLine(launch.Command(cfg)))
		return
	}

	mode := invlog.ModeAlways
	if p != nil && p.LogMode != "" {
		mode = invlog.Mode(p.LogMode)
	}
	if logModeFlag != "" {
		mode = invlog.Mode(logModeFlag)
	}
	if mode, err = invlog.ParseMode(string(mode)); err != nil {
		usage("%v", err)
	}

	bk, err := openLaunchBackend(ctx, p)
	if err != nil {
		fatal("initializing backend: %v", err)
	}

	l := &launch.Launcher{
		Backend: bk,
		Log:     invlog.New(cfg.LogPath, mode),
		Records: record.DefaultStore(),
		WorkDir: workDirFlag,
		Logger:  logger,
	}
	if p != nil {
		if l.WorkDir == "" {
			l.WorkDir = p.WorkDir
		}
		l.Environment = p.Environment
	}

	h, err := l.Launch(ctx, cfg)
	if cerr := bk.Close(); cerr != nil {
		logger.WithError(cerr).Debug("closing backend")
	}
	if err != nil {
		exitErr(err)
	}
	fmt.Println(h.PID)
}

// openLaunchBackend picks the backend for a new launch: --backend, then the
// profile, then SERVELAUNCH_BACKEND.
func openLaunchBackend(ctx context.Context, p *profile.Profile) (process.ProcessBackend, error) {
	if backendFlag != "" {
		return backend.Open(ctx, backend.Kind(backendFlag))
	}
	if p != nil && p.Backend != "" {
		return backend.Open(ctx, backend.Kind(p.Backend))
	}
	return backend.Default(ctx)
}

func kindList() string {
	var names []string
	for _, k := range backend.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(append(names, string(backend.KindAuto)), ", ")
}

func openBackend(ctx context.Context, kind string) (process.ProcessBackend, error) {
	return backend.Open(ctx, backend.Kind(kind))
}

func cmdStatus(ctx context.Context) {
	m := &launch.Manager{Records: record.DefaultStore(), Open: openBackend}
	statuses, err := m.Status(ctx)
	if err != nil {
		fatal("%v", err)
	}
	if len(statuses) == 0 {
		fmt.Println("no servers launched")
		return
	}

	fmt.Printf("%-6s %-8s %-8s %-8s %-20s %s\n", "PORT", "PID", "BACKEND", "STATE", "STARTED", "MODEL")
	for _, s := range statuses {
		state := string(s.State)
		if s.Err != nil {
			logger.WithError(s.Err).WithField("port", s.Record.Port).Warn("status unavailable")
		}
		fmt.Printf("%-6d %-8d %-8s %-8s %-20s %s\n",
			s.Record.Port,
			s.Record.PID,
			s.Record.Backend,
			state,
			s.Record.Started.Local().Format("2006-01-02 15:04:05"),
			s.Record.ModelPath,
		)
	}
}

func cmdStop(ctx context.Context, portArg string) {
	port, err := strconv.Atoi(portArg)
	if err != nil || port < 1 || port > 65535 {
		usage("invalid port %q", portArg)
	}

	m := &launch.Manager{Records: record.DefaultStore(), Open: openBackend}
	r, err := m.Stop(ctx, port)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			fatal("no server recorded on port %d", port)
		}
		fatal("%v", err)
	}
	fmt.Printf("stopped %d (pid %d)\n", r.Port, r.PID)
}
