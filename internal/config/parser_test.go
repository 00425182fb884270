package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFile_BasicAndWildcard(t *testing.T) {
	d := t.TempDir()
	cfg := `
Host gpu-1
  HostName 10.0.0.10
  IdentityFile ~/.ssh/id_ed25519

Host gpu-*
  User wildcard

Host *
  User default
  Port 22
`
	path := filepath.Join(d, "config")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 1 {
		t.Fatalf("expected 1 concrete host, got %d", len(res.Hosts))
	}
	h := res.Hosts[0]
	if h.Alias != "gpu-1" || h.User != "wildcard" || h.HostName != "10.0.0.10" {
		t.Fatalf("unexpected host parse: %+v", h)
	}
	if h.IdentityFile == "" || filepath.Base(h.IdentityFile) != "id_ed25519" {
		t.Fatalf("unexpected identityfile: %q", h.IdentityFile)
	}
}

func TestParseFile_FirstMatchingBlockWins(t *testing.T) {
	// ssh resolves each option from the first matching block that supplies
	// it; a trailing "Host *" block only fills what is still unset.
	d := t.TempDir()
	cfg := "Host gpu-1\n  User alice\nHost *\n  User fallback\n  Port 2200\n"
	path := filepath.Join(d, "config")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 1 {
		t.Fatalf("expected 1 concrete host, got %d", len(res.Hosts))
	}
	h := res.Hosts[0]
	if h.User != "alice" {
		t.Fatalf("expected first matching block's user, got %q", h.User)
	}
	if h.Port != 2200 {
		t.Fatalf("expected wildcard block to fill unset port, got %d", h.Port)
	}
}

func TestParseFile_IncludeAndMalformed(t *testing.T) {
	d := t.TempDir()
	inc := filepath.Join(d, "inc.conf")
	if err := os.WriteFile(inc, []byte("Host db\n  HostName 10.1.1.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(d, "config")
	content := "Include inc.conf\nBadLine\nHost api\n  HostName api.internal\n"
	if err := os.WriteFile(root, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ParseFile(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 2 {
		t.Fatalf("expected 2 hosts from include+root, got %d", len(res.Hosts))
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected warning for malformed line")
	}
}

func TestParseFile_Missing(t *testing.T) {
	res, err := ParseFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing config must not be fatal: %v", err)
	}
	if len(res.Hosts) != 0 || len(res.Warnings) == 0 {
		t.Fatalf("expected no hosts plus a warning, got %+v", res)
	}
}

func TestParseFile_FirstIdentityFileWins(t *testing.T) {
	d := t.TempDir()
	cfg := "Host stor\n  HostName stor.internal\n  IdentityFile /keys/a\n  IdentityFile /keys/b\n"
	path := filepath.Join(d, "config")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 1 || res.Hosts[0].IdentityFile != "/keys/a" {
		t.Fatalf("expected first identity file, got %+v", res.Hosts)
	}
}
