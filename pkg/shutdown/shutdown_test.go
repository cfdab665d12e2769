package shutdown

import (
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/finixos/finix/pkg/logging"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		t    Type
		want string
	}{
		{Halt, "halt"},
		{Poweroff, "poweroff"},
		{Reboot, "reboot"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.t), got, tt.want)
		}
	}
}

func TestRebootCommand(t *testing.T) {
	if rebootCommand(Halt) != unix.LINUX_REBOOT_CMD_HALT {
		t.Error("halt maps to wrong reboot command")
	}
	if rebootCommand(Poweroff) != unix.LINUX_REBOOT_CMD_POWER_OFF {
		t.Error("poweroff maps to wrong reboot command")
	}
	if rebootCommand(Reboot) != unix.LINUX_REBOOT_CMD_RESTART {
		t.Error("reboot maps to wrong reboot command")
	}
}

func TestKillAllProcessesSequence(t *testing.T) {
	var signals []syscall.Signal
	killFunc = func(pid int, sig syscall.Signal) error {
		if pid != -1 {
			t.Errorf("kill pid = %d, want -1", pid)
		}
		signals = append(signals, sig)
		return nil
	}
	sleepFunc = func(time.Duration) {}
	defer func() {
		killFunc = unix.Kill
		sleepFunc = time.Sleep
	}()

	KillAllProcesses(logging.New(logging.LevelError))

	if len(signals) != 2 || signals[0] != unix.SIGTERM || signals[1] != unix.SIGKILL {
		t.Errorf("signal sequence = %v, want [SIGTERM SIGKILL]", signals)
	}
}
