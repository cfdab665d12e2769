// Package eventloop implements the central coordination loop for
// finix: signal handling, configuration change tracking and the
// reload and shutdown triggers that drive the rest of the daemon.
package eventloop

import (
	"os"
	"os/signal"
	"syscall"
)

// SetupSignals registers the signal handlers an init daemon cares
// about and returns the delivery channel.
func SetupSignals() chan os.Signal {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGHUP,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)
	return sigCh
}

// StopSignals removes the handlers installed by SetupSignals.
func StopSignals(sigCh chan os.Signal) {
	signal.Stop(sigCh)
	close(sigCh)
}
