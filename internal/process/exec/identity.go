package exec

import (
	"math"
	"time"

	"github.com/prometheus/procfs"
)

// startSlack bounds the distance between the kernel's start time for a PID
// and the time recorded right after starting it. /proc/stat reports boot
// time in whole seconds, so the comparison cannot be exact.
const startSlack = 5 * time.Second

// sameProcess reports whether pid still belongs to the process started at
// started. A PID that has been reused since, for instance after a reboot,
// has a different start time. Without a recorded time or a readable /proc
// the PID is taken at its word.
func sameProcess(pid int, started time.Time) bool {
	if started.IsZero() {
		return true
	}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return true
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	secs, err := stat.StartTime()
	if err != nil {
		return true
	}
	actual := time.Unix(0, int64(secs*float64(time.Second)))
	return math.Abs(float64(actual.Sub(started))) <= float64(startSlack)
}
