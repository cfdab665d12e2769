package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/service"
)

func newReloadEngine(t *testing.T) (*config.Engine, *service.Registry) {
	t.Helper()
	log := logging.New(logging.LevelError)

	dir := t.TempDir()
	e := config.NewEngine(log)
	e.ConfPath = filepath.Join(dir, "finix.conf")
	e.RCSDPath = filepath.Join(dir, "finix.d")
	e.SystemPath = filepath.Join(dir, "share")
	e.RescuePath = filepath.Join(dir, "rescue.conf")
	if err := os.MkdirAll(e.RCSDPath, 0755); err != nil {
		t.Fatal(err)
	}

	reg := service.NewRegistry(log)
	e.Registry = reg
	return e, reg
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReloadRegistersAndSweeps(t *testing.T) {
	e, reg := newReloadEngine(t)

	write(t, e.ConfPath, "service [2345] log myd.sh -- demo\n")
	frag := filepath.Join(e.RCSDPath, "extra.conf")
	write(t, frag, "service [2345] extra.sh\n")

	if err := e.Reload(nil); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reg.Find("myd") == nil || reg.Find("extra") == nil {
		t.Fatal("entries missing after first reload")
	}

	// Remove the fragment; its entry must disappear on the next
	// replay while the surviving one stays.
	if err := os.Remove(frag); err != nil {
		t.Fatal(err)
	}
	if err := e.Reload(nil); err != nil {
		t.Fatalf("second Reload failed: %v", err)
	}
	if reg.Find("extra") != nil {
		t.Error("entry from removed fragment survived the reload")
	}
	if reg.Find("myd") == nil {
		t.Error("entry from surviving configuration was swept")
	}
}

func TestReloadMissingMainConf(t *testing.T) {
	e, reg := newReloadEngine(t)

	if err := e.Reload(nil); err != nil {
		t.Fatalf("Reload with no configuration failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("entries registered from nothing: %d", reg.Len())
	}
}

func TestReloadBrokenIncludeIsFatal(t *testing.T) {
	e, _ := newReloadEngine(t)

	write(t, e.ConfPath, "include /nonexistent/chain.conf\n")
	err := e.Reload(nil)
	if err == nil {
		t.Fatal("broken include chain should abort the reload")
	}
	if _, ok := err.(*config.IncludeError); !ok {
		t.Errorf("error type = %T, want *config.IncludeError", err)
	}
}

func TestReloadRescueMode(t *testing.T) {
	e, reg := newReloadEngine(t)
	e.Rescue = true

	write(t, e.ConfPath, "service [2345] ignored.sh\n")
	write(t, e.RescuePath, "tty [12345] @console noclear\n")

	if err := e.Reload(nil); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reg.Find("ignored") != nil {
		t.Error("normal configuration parsed in rescue mode")
	}
	if reg.Find("tty:console") == nil {
		t.Error("rescue tty not registered")
	}
}

func TestReloadRescueFallback(t *testing.T) {
	e, reg := newReloadEngine(t)
	e.Rescue = true

	// No rescue configuration on disk at all.
	if err := e.Reload(nil); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	en := reg.Find("tty:console")
	if en == nil {
		t.Fatal("fallback console tty not registered")
	}
	for _, lvl := range []int{1, 2, 3, 4, 5} {
		if !en.Runlevels.Has(lvl) {
			t.Errorf("fallback tty missing runlevel %d", lvl)
		}
	}
}

func TestReloadSingleUserMode(t *testing.T) {
	e, _ := newReloadEngine(t)
	e.Single = true

	write(t, e.ConfPath, "runlevel 3\n")
	if err := e.Reload(nil); err != nil {
		t.Fatal(err)
	}
	if e.RunlevelCfg != 1 {
		t.Errorf("runlevel cfg = %d, single mode should force 1", e.RunlevelCfg)
	}
}

func TestReloadResetsEnv(t *testing.T) {
	e, _ := newReloadEngine(t)
	t.Cleanup(func() { os.Unsetenv("FINIX_RELOAD_TEST") })

	write(t, e.ConfPath, "set FINIX_RELOAD_TEST=one\n")
	if err := e.Reload(nil); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("FINIX_RELOAD_TEST") != "one" {
		t.Fatalf("env not applied: %q", os.Getenv("FINIX_RELOAD_TEST"))
	}

	// Drop the assignment from the configuration; the variable must
	// not leak into the next generation.
	write(t, e.ConfPath, "# no assignments\n")
	if err := e.Reload(nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := os.LookupEnv("FINIX_RELOAD_TEST"); ok {
		t.Error("stale environment variable survived the reload")
	}
	if os.Getenv("PATH") == "" {
		t.Error("default environment not reseeded")
	}
}

func TestReloadDropsTrackerRecords(t *testing.T) {
	e, _ := newReloadEngine(t)

	tr, err := config.NewTracker(logging.New(logging.LevelError))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if err := tr.Watch(e.RCSDPath); err != nil {
		t.Fatal(err)
	}

	frag := filepath.Join(e.RCSDPath, "a.conf")
	write(t, frag, "task a.sh\n")

	// Drain the raw event into a record, then reload.
	deadline := make(chan struct{})
	go func() {
		for ev := range tr.Events() {
			tr.HandleEvent(ev)
			close(deadline)
			return
		}
	}()
	<-deadline

	if !tr.AnyChange() {
		t.Fatal("no change recorded before reload")
	}
	if err := e.Reload(tr); err != nil {
		t.Fatal(err)
	}
	if tr.AnyChange() {
		t.Error("reload did not drop pending change records")
	}
}

func TestWriteAndReadStatusFile(t *testing.T) {
	e, _ := newReloadEngine(t)

	path := filepath.Join(t.TempDir(), "run", "finix.status")
	if err := e.WriteStatusFile(path, "/run/finix.socket"); err != nil {
		t.Fatalf("WriteStatusFile failed: %v", err)
	}

	status, err := config.ReadStatusFile(path)
	if err != nil {
		t.Fatalf("ReadStatusFile failed: %v", err)
	}
	if status["FINIX_CONF"] != e.ConfPath {
		t.Errorf("FINIX_CONF = %q, want %q", status["FINIX_CONF"], e.ConfPath)
	}
	if status["FINIX_RCSD"] != e.RCSDPath {
		t.Errorf("FINIX_RCSD = %q", status["FINIX_RCSD"])
	}
	if status["FINIX_SOCKET"] != "/run/finix.socket" {
		t.Errorf("FINIX_SOCKET = %q", status["FINIX_SOCKET"])
	}
}
