//go:build linux

package sampler

import "golang.org/x/sys/unix"

// raisePriority moves the locked sampler thread into the high-priority
// band. Needs CAP_SYS_NICE; failure is tolerated and logged.
func raisePriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, -10)
}
