package doctor

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestRun_CleanConfig(t *testing.T) {
	d := t.TempDir()
	key := filepath.Join(d, "key")
	if err := os.WriteFile(key, []byte("k"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(d, "config")
	content := "Host cluster\n  HostName 10.0.0.1\n  User deploy\n  IdentityFile " + key + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := Run(Options{ConfigPath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", rep.Issues)
	}
}

func TestRun_BroadKeyPermissions(t *testing.T) {
	d := t.TempDir()
	key := filepath.Join(d, "key")
	if err := os.WriteFile(key, []byte("k"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(d, "config")
	content := "Host cluster\n  HostName 10.0.0.1\n  IdentityFile " + key + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := Run(Options{ConfigPath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.HasHigh() {
		t.Fatalf("expected high severity for 0644 key, got %+v", rep.Issues)
	}
}

func TestRun_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfgPath := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(cfgPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	rep, err := Run(Options{ConfigPath: cfgPath, LocalPort: port})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, i := range rep.Issues {
		if i.Check == "local-port" && i.Severity == SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected local-port issue, got %+v", rep.Issues)
	}
}

func TestRun_InvalidPortRange(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(cfgPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	rep, err := Run(Options{ConfigPath: cfgPath, ListenPort: 70000})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.HasHigh() {
		t.Fatalf("expected issue for out-of-range port, got %+v", rep.Issues)
	}
}
