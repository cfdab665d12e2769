// Package shutdown implements PID 1 early initialization and the
// final system shutdown sequence: halt, poweroff and reboot, with an
// optional shutdown script and reboot-delay grace period.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/finixos/finix/pkg/logging"
)

// InitPID1 performs early setup when running as process 1: console
// redirection, Ctrl+Alt+Del takeover, the child subreaper flag and
// ignoring terminal job control signals. Failures are logged and
// tolerated, a degraded init still has to boot the system.
func InitPID1(log *logging.Logger) error {
	if err := setupConsole(); err != nil {
		log.Debug("Console setup: %v (non-fatal)", err)
	} else {
		log.Debug("Console redirected to /dev/console")
	}

	// With CAD off the kernel delivers SIGINT to PID 1 instead of
	// rebooting on Ctrl+Alt+Del, letting us shut down in order.
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_CAD_OFF); err != nil {
		log.Debug("Disable CAD: %v (non-fatal)", err)
	} else {
		log.Debug("Ctrl+Alt+Del disabled")
	}

	if err := SetChildSubreaper(); err != nil {
		log.Debug("Set child subreaper: %v (non-fatal)", err)
	} else {
		log.Debug("Child subreaper set")
	}

	signal.Ignore(
		syscall.SIGTSTP,
		syscall.SIGTTIN,
		syscall.SIGTTOU,
		syscall.SIGPIPE,
	)
	log.Debug("Terminal signals ignored (SIGTSTP, SIGTTIN, SIGTTOU, SIGPIPE)")

	return nil
}

// setupConsole redirects stdin, stdout and stderr to /dev/console so
// early log output lands on the system console.
func setupConsole() error {
	consR, err := os.OpenFile("/dev/console", os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	if err := unix.Dup3(int(consR.Fd()), 0, 0); err != nil {
		consR.Close()
		return err
	}
	if int(consR.Fd()) > 2 {
		consR.Close()
	}

	consW, err := os.OpenFile("/dev/console", os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := unix.Dup3(int(consW.Fd()), 1, 0); err != nil {
		consW.Close()
		return err
	}
	if err := unix.Dup3(int(consW.Fd()), 2, 0); err != nil {
		consW.Close()
		return err
	}
	if int(consW.Fd()) > 2 {
		consW.Close()
	}

	return nil
}

// SetChildSubreaper marks the current process as a child subreaper
// so orphaned descendants reparent to us rather than to PID 1.
func SetChildSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}
