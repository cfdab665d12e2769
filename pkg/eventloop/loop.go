package eventloop

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/shutdown"
)

// reloadDebounce is how long after the last configuration change
// event an automatic reload waits, so editors and package managers
// touching several files trigger a single replay.
const reloadDebounce = 2 * time.Second

// EventLoop coordinates signals, configuration change events and
// control socket requests for finix.
type EventLoop struct {
	engine  *config.Engine
	tracker *config.Tracker
	log     *logging.Logger

	sigCh      chan os.Signal
	reloadCh   chan struct{}
	shutdownCh chan shutdown.Type
	debounce   *DebounceTimer

	// AutoReload replays the configuration automatically after
	// change events settle, instead of waiting for SIGHUP or a
	// control request.
	AutoReload bool

	// OnReload runs after every successful configuration replay.
	OnReload func()

	isPID1       bool
	shutdownType shutdown.Type
}

// New creates an event loop over the given engine and tracker.
func New(engine *config.Engine, tracker *config.Tracker, log *logging.Logger) *EventLoop {
	return &EventLoop{
		engine:     engine,
		tracker:    tracker,
		log:        log,
		reloadCh:   make(chan struct{}, 1),
		shutdownCh: make(chan shutdown.Type, 1),
		debounce:   NewDebounceTimer(),
	}
}

// SetPID1Mode enables PID 1 behavior: SIGINT, delivered by the
// kernel on Ctrl+Alt+Del once CAD is disabled, means reboot.
func (el *EventLoop) SetPID1Mode(v bool) {
	el.isPID1 = v
}

// ShutdownType returns the shutdown requested before Run returned.
func (el *EventLoop) ShutdownType() shutdown.Type {
	return el.shutdownType
}

// RequestReload asks the loop to replay the configuration, used by
// the control server. Safe to call from any goroutine.
func (el *EventLoop) RequestReload() {
	select {
	case el.reloadCh <- struct{}{}:
	default:
	}
}

// RequestShutdown asks the loop to exit with the given shutdown
// type. Safe to call from any goroutine.
func (el *EventLoop) RequestShutdown(t shutdown.Type) {
	select {
	case el.shutdownCh <- t:
	default:
	}
}

// Run blocks until the context is cancelled or a shutdown is
// requested, dispatching signals and change events as they arrive.
func (el *EventLoop) Run(ctx context.Context) error {
	el.sigCh = SetupSignals()
	defer StopSignals(el.sigCh)
	defer el.debounce.Stop()

	// Without a tracker the change cases stay parked on nil channels.
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if el.tracker != nil {
		events = el.tracker.Events()
		watchErrs = el.tracker.Errors()
	}

	el.log.Info("finix event loop started (PID %d)", os.Getpid())

	for {
		select {
		case <-ctx.Done():
			el.log.Info("Context cancelled, shutting down")
			return ctx.Err()

		case sig := <-el.sigCh:
			if el.handleSignal(sig) {
				el.drainTracker()
				return nil
			}

		case ev := <-events:
			el.tracker.HandleEvent(ev)
			if el.AutoReload {
				el.debounce.Arm(reloadDebounce)
			}

		case err := <-watchErrs:
			el.log.Warn("Configuration watcher: %v", err)

		case <-el.debounce.Chan():
			el.debounce.Stop()
			if el.tracker.AnyChange() {
				if el.tracker.Changed(el.engine.ConfPath) {
					el.log.Notice("Main configuration %s changed", el.engine.ConfPath)
				}
				el.reload()
			}

		case <-el.reloadCh:
			el.reload()

		case t := <-el.shutdownCh:
			el.log.Notice("Shutdown requested: %s", t)
			el.shutdownType = t
			el.drainTracker()
			return nil
		}
	}
}

// drainTracker discards queued change events on the way out; a
// reload will never happen once shutdown has begun.
func (el *EventLoop) drainTracker() {
	if el.tracker != nil {
		el.tracker.Drain()
	}
}

func (el *EventLoop) reload() {
	el.log.Notice("Reloading configuration")
	if err := el.engine.Reload(el.tracker); err != nil {
		el.log.Error("Configuration reload failed: %v", err)
		return
	}
	if el.OnReload != nil {
		el.OnReload()
	}
}

// handleSignal dispatches one OS signal. Returns true when the loop
// should exit for shutdown.
func (el *EventLoop) handleSignal(sig os.Signal) bool {
	sysSignal, ok := sig.(syscall.Signal)
	if !ok {
		return false
	}

	switch sysSignal {
	case syscall.SIGHUP:
		el.log.Notice("Received SIGHUP, reloading configuration")
		el.reload()
		return false

	case syscall.SIGTERM:
		el.log.Notice("Received SIGTERM, initiating halt")
		el.shutdownType = shutdown.Halt
		return true

	case syscall.SIGINT:
		if el.isPID1 {
			el.log.Notice("Received SIGINT (Ctrl+Alt+Del), initiating reboot")
			el.shutdownType = shutdown.Reboot
		} else {
			el.log.Notice("Received SIGINT, initiating halt")
			el.shutdownType = shutdown.Halt
		}
		return true

	case syscall.SIGQUIT, syscall.SIGUSR2:
		el.log.Notice("Received %v, initiating poweroff", sysSignal)
		el.shutdownType = shutdown.Poweroff
		return true

	case syscall.SIGUSR1:
		el.log.Notice("Received SIGUSR1, initiating halt")
		el.shutdownType = shutdown.Halt
		return true
	}

	return false
}
