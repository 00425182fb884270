package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveAlias(t *testing.T) {
	path := writeConfig(t, `
Host cluster
  HostName cluster.lab.internal
  User deploy
  Port 2222
  IdentityFile /keys/cluster
`)
	spec, err := ResolveAlias(path, "cluster")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Hostname != "cluster.lab.internal" || spec.Username != "deploy" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.Port != 2222 || spec.IdentityFile != "/keys/cluster" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if !spec.FromAlias || spec.Alias != "cluster" {
		t.Fatalf("expected alias provenance, got %+v", spec)
	}
	if spec.Addr() != "cluster.lab.internal:2222" {
		t.Fatalf("unexpected addr: %s", spec.Addr())
	}
}

func TestResolveAlias_WildcardPattern(t *testing.T) {
	// An alias covered only by a wildcard block still resolves: ssh applies
	// every matching Host pattern, not just blocks naming the alias.
	path := writeConfig(t, `
Host gpu-*
  User deploy
  IdentityFile /keys/gpu
`)
	spec, err := ResolveAlias(path, "gpu-2")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Hostname != "gpu-2" || spec.Username != "deploy" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.IdentityFile != "/keys/gpu" || spec.Port != 22 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if !spec.FromAlias || spec.Alias != "gpu-2" {
		t.Fatalf("expected alias provenance, got %+v", spec)
	}
}

func TestResolveAlias_DefaultsHostnameToAlias(t *testing.T) {
	// Alias without a HostName directive resolves to itself, the same way
	// OpenSSH treats an unknown destination.
	path := writeConfig(t, "Host bare\n  User deploy\n")
	spec, err := ResolveAlias(path, "bare")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Hostname != "bare" || spec.Port != 22 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestResolveAlias_NoUsername(t *testing.T) {
	path := writeConfig(t, "Host nouser\n  HostName 10.0.0.9\n")
	_, err := ResolveAlias(path, "nouser")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestResolveAlias_MissingFile(t *testing.T) {
	// No config file at all: non-fatal, but the alias alone carries no
	// username, so resolution still fails with ConfigError.
	_, err := ResolveAlias(filepath.Join(t.TempDir(), "nope"), "somewhere")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestResolveExplicit(t *testing.T) {
	spec, err := ResolveExplicit(Explicit{Host: "10.1.2.3", User: "deploy", KeyPath: "/keys/id"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.Hostname != "10.1.2.3" || spec.Username != "deploy" || spec.Port != 22 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.FromAlias {
		t.Fatal("explicit spec must not claim alias provenance")
	}
}

func TestResolveExplicit_Invalid(t *testing.T) {
	cases := []Explicit{
		{Host: "", User: "deploy"},
		{Host: "10.1.2.3", User: ""},
		{Host: "  ", User: "  "},
	}
	for _, c := range cases {
		if _, err := ResolveExplicit(c); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
