package launch

import (
	"strconv"
	"strings"
)

// Command returns the server argv for cfg. The same config always yields
// the same argv.
func Command(cfg LaunchConfig) []string {
	argv := make([]string, 0, 1+len(cfg.ProgramArgs)+8+len(cfg.Flags))
	argv = append(argv, cfg.Program)
	argv = append(argv, cfg.ProgramArgs...)
	argv = append(argv,
		"--model", cfg.ModelPath,
		"--tensor-parallel-size", strconv.Itoa(cfg.Parallelism),
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
	)
	argv = append(argv, cfg.Flags...)
	return argv
}

// CommandLine renders argv for logs and --dry-run. Arguments are quoted
// for a POSIX shell only when they need it.
func CommandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@%+,", r)
}
