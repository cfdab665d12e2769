package config

import (
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// rescueFallback is registered when rescue mode is requested and the
// rescue configuration itself is missing: an interactive console on
// all runlevels, guaranteed to come up.
const rescueFallback = "[12345] @console noclear nologin"

// Reload replays the on-disk configuration from a clean slate and
// reconciles it with the live service set. It runs synchronously to
// completion; per-directive and per-file failures are isolated and
// logged, and only a missing include target escalates as an error.
//
// The tracker may be nil; its pending records are dropped either way
// once the reload has run.
func (e *Engine) Reload(tr *Tracker) error {
	refreshTimezone(e)

	// Mark phase: everything currently known becomes a removal
	// candidate until the new configuration re-registers it.
	if e.Registry != nil {
		e.Registry.MarkDynamic()
	}
	if e.CGroups != nil {
		e.CGroups.Mark()
	}

	e.resetEnv()

	// The global limit scope starts over from the values captured at
	// daemon startup, never from the previous reload's leftovers.
	e.Global = e.baseline

	if e.Rescue {
		if err := e.reloadRescue(); err != nil {
			return err
		}
		return e.finishReload(tr)
	}

	if err := e.ParseConfigFile(e.ConfPath, false); err != nil {
		if inc, ok := err.(*IncludeError); ok {
			return inc
		}
		// A missing main configuration is fine, boot proceeds with
		// compiled-in defaults.
		e.log.Debug("No %s: %v", e.ConfPath, err)
	}

	// Apply the global limits to the daemon itself, one resource at a
	// time.
	ApplyRlimits(&e.Global, e.log)

	if err := e.parseFragments(); err != nil {
		return err
	}

	if e.Registry != nil {
		e.Registry.Cleanup()
	}
	if e.CGroups != nil {
		e.CGroups.Materialize()
	}

	return e.finishReload(tr)
}

// reloadRescue parses the rescue configuration, falling back to a
// lone interactive shell on all runlevels if it is missing.
func (e *Engine) reloadRescue() error {
	err := e.ParseConfigFile(e.RescuePath, false)
	if err == nil {
		e.log.Notice("Entering rescue mode")
		return nil
	}
	if inc, ok := err.(*IncludeError); ok {
		return inc
	}

	e.log.Notice("Entering rescue mode (no %s, falling back to console shell)", e.RescuePath)
	if e.Registry != nil {
		return e.Registry.Register(Directive{
			Kind:    KindTTY,
			Spec:    rescueFallback,
			Rlimits: e.Global,
		})
	}
	return nil
}

// finishReload is the join point of the normal and rescue branches.
func (e *Engine) finishReload(tr *Tracker) error {
	// Sweep phase for control groups left marked since the start of
	// the reload.
	if e.CGroups != nil {
		e.CGroups.Sweep()
	}

	if tr != nil {
		tr.DropPending()
	}

	// 'single'/'S' on the kernel command line overrides whatever the
	// configuration asked for.
	if e.bootstrap() && e.Single {
		e.RunlevelCfg = 1
	}

	e.applyHostname()
	return nil
}

// refreshTimezone re-reads the local timezone definition so daylight
// saving changes picked up on disk take effect for subsequent
// timestamps.
func refreshTimezone(e *Engine) {
	if loc, err := time.LoadLocation("Local"); err == nil {
		time.Local = loc
	}
	zone, offset := time.Now().Zone()
	e.log.Debug("Timezone %s, UTC offset %d", zone, offset)
}

// ResolveHostname returns the effective host name: /etc/hostname
// wins over the configured value, which wins over the compiled-in
// default.
func (e *Engine) ResolveHostname() string {
	if data, err := os.ReadFile("/etc/hostname"); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	if e.Hostname != "" {
		return e.Hostname
	}
	return DefaultHostname
}

func (e *Engine) applyHostname() {
	name := e.ResolveHostname()
	if err := unix.Sethostname([]byte(name)); err != nil {
		e.log.Debug("Failed setting hostname %q: %v", name, err)
		return
	}
	e.log.Info("Hostname set to %s", name)
}
