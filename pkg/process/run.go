// Package process runs the one-shot helper commands the boot
// configuration needs, mknod, modprobe and friends. Supervised
// long-running services are the registry's concern, not this
// package's.
package process

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/finixos/finix/pkg/logging"
)

// Runner executes boot-time helper commands synchronously.
// Implements config.CommandRunner.
type Runner struct {
	log     *logging.Logger
	timeout time.Duration
}

// NewRunner creates a runner with the given per-command timeout.
// A zero timeout means wait forever.
func NewRunner(log *logging.Logger, timeout time.Duration) *Runner {
	return &Runner{log: log, timeout: timeout}
}

// Run executes cmdline through /bin/sh, logging descr as progress.
// The command inherits the init environment; output is captured and
// logged on failure.
func (r *Runner) Run(cmdline, descr string, args ...interface{}) error {
	msg := fmt.Sprintf(descr, args...)
	r.log.Info("%s", msg)

	cmd := exec.Command("/bin/sh", "-c", cmdline)
	// Own process group, so a timeout can take out the shell and
	// everything it spawned in one kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	done := make(chan error, 1)

	out := &strings.Builder{}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		r.log.Warn("%s: failed to start: %v", msg, err)
		return err
	}
	go func() { done <- cmd.Wait() }()

	var timer <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-done:
		if err != nil {
			r.log.Warn("%s: %v", msg, err)
			if s := strings.TrimSpace(out.String()); s != "" {
				r.log.Debug("%s: output: %s", msg, s)
			}
			return err
		}
		return nil
	case <-timer:
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		<-done
		err := fmt.Errorf("command %q timed out after %s", cmdline, r.timeout)
		r.log.Warn("%s: %v", msg, err)
		return err
	}
}
