package eventloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/shutdown"
)

func newTestLoop(t *testing.T) *EventLoop {
	t.Helper()
	log := logging.New(logging.LevelError)

	dir := t.TempDir()
	engine := config.NewEngine(log)
	engine.ConfPath = filepath.Join(dir, "finix.conf")
	engine.RCSDPath = filepath.Join(dir, "finix.d")
	engine.SystemPath = filepath.Join(dir, "share")
	if err := os.MkdirAll(engine.RCSDPath, 0755); err != nil {
		t.Fatal(err)
	}

	tracker, err := config.NewTracker(log)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })

	return New(engine, tracker, log)
}

func TestRunReturnsOnShutdownRequest(t *testing.T) {
	el := newTestLoop(t)

	done := make(chan error, 1)
	go func() { done <- el.Run(context.Background()) }()

	// Give the loop a moment to install handlers.
	time.Sleep(10 * time.Millisecond)
	el.RequestShutdown(shutdown.Poweroff)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown request")
	}

	if el.ShutdownType() != shutdown.Poweroff {
		t.Errorf("shutdown type = %v, want poweroff", el.ShutdownType())
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	el := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- el.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRequestReloadRunsCallback(t *testing.T) {
	el := newTestLoop(t)

	reloaded := make(chan struct{}, 1)
	el.OnReload = func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- el.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	el.RequestReload()

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback never ran")
	}

	cancel()
	<-done
}

func TestDebounceTimer(t *testing.T) {
	d := NewDebounceTimer()
	if d.IsArmed() {
		t.Error("new timer should be disarmed")
	}
	if d.Chan() != nil {
		t.Error("disarmed timer channel should be nil")
	}

	d.Arm(10 * time.Millisecond)
	if !d.IsArmed() {
		t.Error("armed timer reports disarmed")
	}
	select {
	case <-d.Chan():
	case <-time.After(2 * time.Second):
		t.Fatal("armed timer never fired")
	}

	d.Stop()
	if d.IsArmed() || d.Chan() != nil {
		t.Error("stopped timer should be disarmed with nil channel")
	}
}
