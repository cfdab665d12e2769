package shutdown

import (
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/finixos/finix/pkg/logging"
)

// Type selects the final system action.
type Type int

const (
	Halt Type = iota
	Poweroff
	Reboot
)

func (t Type) String() string {
	switch t {
	case Halt:
		return "halt"
	case Poweroff:
		return "poweroff"
	case Reboot:
		return "reboot"
	default:
		return fmt.Sprintf("shutdown(%d)", int(t))
	}
}

// killGracePeriod is the wait between SIGTERM and SIGKILL when
// clearing out remaining processes.
const killGracePeriod = 1 * time.Second

// Mockable syscall functions for testing.
var (
	killFunc   = unix.Kill
	syncFunc   = unix.Sync
	rebootFunc = unix.Reboot
	sleepFunc  = time.Sleep
)

// Sequence holds the configurable parts of the shutdown procedure.
// Script, if set, runs before processes are killed; Delay is the
// reboot-delay grace period before the final syscall.
type Sequence struct {
	Script string
	Delay  time.Duration
}

// Execute performs the full shutdown: run the shutdown script, kill
// everything, sync, wait out the grace delay and issue the reboot
// syscall. Only meaningful as PID 1; does not return on success.
func (s Sequence) Execute(t Type, log *logging.Logger) {
	log.Notice("Executing shutdown: %s", t)

	if s.Script != "" {
		log.Info("Running shutdown script %s", s.Script)
		cmd := exec.Command(s.Script, t.String())
		if err := cmd.Run(); err != nil {
			log.Warn("Shutdown script failed: %v", err)
		}
	}

	KillAllProcesses(log)

	log.Info("Syncing filesystems...")
	syncFunc()

	if s.Delay > 0 {
		log.Info("Waiting %s before %s", s.Delay, t)
		sleepFunc(s.Delay)
	}

	if err := rebootFunc(rebootCommand(t)); err != nil {
		log.Error("Reboot syscall failed: %v", err)
	}

	// The syscall failed and PID 1 must never exit.
	log.Error("Shutdown failed, holding indefinitely")
	InfiniteHold()
}

// KillAllProcesses sends SIGTERM to every process, waits a grace
// period, then follows up with SIGKILL. kill(-1, sig) reaches all
// processes except PID 1 itself.
func KillAllProcesses(log *logging.Logger) {
	log.Info("Sending SIGTERM to all processes...")
	if err := killFunc(-1, unix.SIGTERM); err != nil && err != unix.ESRCH {
		log.Debug("kill(-1, SIGTERM): %v", err)
	}

	sleepFunc(killGracePeriod)

	log.Info("Sending SIGKILL to remaining processes...")
	if err := killFunc(-1, unix.SIGKILL); err != nil && err != unix.ESRCH {
		log.Debug("kill(-1, SIGKILL): %v", err)
	}
}

func rebootCommand(t Type) int {
	switch t {
	case Poweroff:
		return unix.LINUX_REBOOT_CMD_POWER_OFF
	case Reboot:
		return unix.LINUX_REBOOT_CMD_RESTART
	default:
		return unix.LINUX_REBOOT_CMD_HALT
	}
}

// InfiniteHold blocks the calling goroutine forever, the last resort
// when the reboot syscall fails.
func InfiniteHold() {
	select {}
}
