package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newResolverEngine(t *testing.T) (*Engine, *recordingRegistry) {
	t.Helper()
	e, reg := newTestEngine(t)
	dir := t.TempDir()
	e.RCSDPath = filepath.Join(dir, "finix.d")
	e.SystemPath = filepath.Join(dir, "share")
	for _, d := range []string{e.RCSDPath, filepath.Join(e.RCSDPath, "enabled"), e.SystemPath} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return e, reg
}

func writeConf(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFragmentShadowing(t *testing.T) {
	e, reg := newResolverEngine(t)

	// Same basename in both trees: the override copy wins.
	writeConf(t, filepath.Join(e.SystemPath, "myd.conf"), "service [2345] myd.sh --default\n")
	writeConf(t, filepath.Join(e.RCSDPath, "myd.conf"), "service [2345] myd.sh --custom\n")
	writeConf(t, filepath.Join(e.SystemPath, "other.conf"), "service [2345] other.sh\n")

	if err := e.parseFragments(); err != nil {
		t.Fatalf("parseFragments failed: %v", err)
	}

	specs := make(map[string]bool)
	for _, d := range reg.dirs {
		specs[d.Spec] = true
	}
	if specs["[2345] myd.sh --default"] {
		t.Error("shadowed system fragment was parsed")
	}
	if !specs["[2345] myd.sh --custom"] {
		t.Error("override fragment missing")
	}
	if !specs["[2345] other.sh"] {
		t.Error("unshadowed system fragment missing")
	}
}

func TestFragmentCandidateOrder(t *testing.T) {
	e, _ := newResolverEngine(t)

	writeConf(t, filepath.Join(e.SystemPath, "sys.conf"), "")
	writeConf(t, filepath.Join(e.RCSDPath, "a.conf"), "")
	writeConf(t, filepath.Join(e.RCSDPath, "enabled", "b.conf"), "")

	list := e.FragmentCandidates()
	if len(list) != 3 {
		t.Fatalf("candidate count = %d: %v", len(list), list)
	}
	if filepath.Base(list[0]) != "sys.conf" {
		t.Errorf("system defaults should come first, got %v", list)
	}
}

func TestFragmentDanglingSymlinkSkipped(t *testing.T) {
	e, reg := newResolverEngine(t)

	link := filepath.Join(e.RCSDPath, "enabled", "gone.conf")
	if err := os.Symlink(filepath.Join(e.RCSDPath, "available", "gone.conf"), link); err != nil {
		t.Fatal(err)
	}
	writeConf(t, filepath.Join(e.RCSDPath, "ok.conf"), "task ok.sh\n")

	if err := e.parseFragments(); err != nil {
		t.Fatalf("parseFragments failed: %v", err)
	}
	if len(reg.dirs) != 1 || reg.dirs[0].Kind != KindTask {
		t.Errorf("directives = %+v, want only the healthy fragment", reg.dirs)
	}
}

func TestFragmentSymlinkResolved(t *testing.T) {
	e, reg := newResolverEngine(t)

	avail := filepath.Join(e.RCSDPath, "available")
	if err := os.MkdirAll(avail, 0755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(avail, "svc.conf")
	writeConf(t, target, "service [2345] svc.sh\n")
	if err := os.Symlink(target, filepath.Join(e.RCSDPath, "enabled", "svc.conf")); err != nil {
		t.Fatal(err)
	}

	if err := e.parseFragments(); err != nil {
		t.Fatalf("parseFragments failed: %v", err)
	}
	if len(reg.dirs) != 1 {
		t.Fatalf("directives = %+v", reg.dirs)
	}
}

func TestFragmentNonConfIgnored(t *testing.T) {
	e, reg := newResolverEngine(t)

	writeConf(t, filepath.Join(e.RCSDPath, "README"), "service [2345] nope.sh\n")
	writeConf(t, filepath.Join(e.RCSDPath, "backup.conf.bak"), "service [2345] nope.sh\n")

	if err := e.parseFragments(); err != nil {
		t.Fatal(err)
	}
	if len(reg.dirs) != 0 {
		t.Errorf("non-.conf files were parsed: %+v", reg.dirs)
	}
}

func TestFragmentBareTemplateSkipped(t *testing.T) {
	e, reg := newResolverEngine(t)

	writeConf(t, filepath.Join(e.RCSDPath, "pump@.conf"), "service [2345] pump -i %i\n")
	writeConf(t, filepath.Join(e.RCSDPath, "pump@eth0.conf"), "service [2345] pump -i %i\n")

	if err := e.parseFragments(); err != nil {
		t.Fatal(err)
	}
	if len(reg.dirs) != 1 {
		t.Fatalf("directives = %+v, want one instantiated template", reg.dirs)
	}
	if reg.dirs[0].Spec != "[2345] pump -i eth0" {
		t.Errorf("expanded spec = %q", reg.dirs[0].Spec)
	}
	if reg.dirs[0].Instance != "eth0" {
		t.Errorf("instance = %q", reg.dirs[0].Instance)
	}
}
