// Package exec starts servers as plain OS processes in their own session.
//
// The child is released right after start: nothing in the launcher waits
// on it, and once the launcher exits it is reparented to init. Describe and
// Stop work from the recorded PID alone, so they also serve later
// invocations that never saw the original *os.Process. The PID is checked
// against the recorded start time first, since records outlive reboots.
package exec
