package control

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/service"
	"github.com/finixos/finix/pkg/shutdown"
)

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, CmdReload, []byte("payload")); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	pktType, payload, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if pktType != CmdReload {
		t.Errorf("type = %d, want %d", pktType, CmdReload)
	}
	if string(payload) != "payload" {
		t.Errorf("payload = %q", payload)
	}
}

func TestPacketEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, CmdQueryVersion, nil); err != nil {
		t.Fatal(err)
	}
	pktType, payload, err := ReadPacket(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if pktType != CmdQueryVersion || payload != nil {
		t.Errorf("got type=%d payload=%v", pktType, payload)
	}
}

func TestPacketOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, CmdReload, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("oversize payload should be rejected")
	}
}

func TestEntryInfoRoundTrip(t *testing.T) {
	log := logging.New(logging.LevelError)
	reg := service.NewRegistry(log)
	if err := reg.Register(config.Directive{
		Kind: config.KindService,
		Spec: "[2345] myd.sh -- demo",
	}); err != nil {
		t.Fatal(err)
	}

	en := reg.Find("myd")
	data := EncodeEntryInfo(en)
	info, n, err := DecodeEntryInfo(data)
	if err != nil {
		t.Fatalf("DecodeEntryInfo failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d of %d bytes", n, len(data))
	}
	if info.Key != "myd" || info.Kind != config.KindService {
		t.Errorf("decoded entry = %+v", info)
	}
	if info.Runlevels != en.Runlevels {
		t.Errorf("runlevels = %v, want %v", info.Runlevels, en.Runlevels)
	}
	if info.Removal {
		t.Error("fresh entry should not be marked for removal")
	}
}

func newTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	log := logging.New(logging.LevelError)
	engine := config.NewEngine(log)
	reg := service.NewRegistry(log)
	engine.Registry = reg

	sock := filepath.Join(t.TempDir(), "finix.socket")
	srv := NewServer(engine, reg, sock, log)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return srv, client
}

func TestClientVersion(t *testing.T) {
	_, client := newTestServer(t)

	v, err := client.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != ProtocolVersion {
		t.Errorf("version = %d, want %d", v, ProtocolVersion)
	}
}

func TestClientReload(t *testing.T) {
	srv, client := newTestServer(t)

	called := false
	srv.ReloadFunc = func() error {
		called = true
		return nil
	}

	if err := client.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if !called {
		t.Error("reload callback not invoked")
	}
}

func TestClientReloadRefusedWithoutHandler(t *testing.T) {
	_, client := newTestServer(t)

	if err := client.Reload(); err == nil {
		t.Error("reload without handler should be refused")
	}
}

func TestClientListEntries(t *testing.T) {
	srv, client := newTestServer(t)

	for _, spec := range []string{"[2345] a.sh", "[2] b.sh"} {
		if err := srv.registry.Register(config.Directive{Kind: config.KindService, Spec: spec}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := client.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count = %d, want 2", len(entries))
	}
	if entries[0].Key != "a" || entries[1].Key != "b" {
		t.Errorf("keys = %q, %q", entries[0].Key, entries[1].Key)
	}
}

func TestClientShutdown(t *testing.T) {
	srv, client := newTestServer(t)

	got := make(chan shutdown.Type, 1)
	srv.ShutdownFunc = func(st shutdown.Type) { got <- st }

	if err := client.Shutdown(shutdown.Reboot); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if st := <-got; st != shutdown.Reboot {
		t.Errorf("shutdown type = %v, want reboot", st)
	}
}

func TestClientRunlevel(t *testing.T) {
	srv, client := newTestServer(t)
	srv.engine.SetRunlevel(3)

	lvl, err := client.Runlevel()
	if err != nil {
		t.Fatalf("Runlevel failed: %v", err)
	}
	if lvl != "3" {
		t.Errorf("runlevel = %q, want %q", lvl, "3")
	}
}
