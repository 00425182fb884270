package sshclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/treykane/data-proxy/internal/model"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAuthMethods_NoKeyNoAgent(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, err := authMethods(model.ConnectionSpec{Hostname: "h", Username: "u"})
	if err == nil {
		t.Fatal("expected error with no identity file and no agent")
	}
}

func TestAuthMethods_MissingIdentityFile(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, err := authMethods(model.ConnectionSpec{
		Hostname:     "h",
		Username:     "u",
		IdentityFile: filepath.Join(t.TempDir(), "nope"),
	})
	if err == nil || !strings.Contains(err.Error(), "identity file") {
		t.Fatalf("expected identity file error, got %v", err)
	}
}

func TestAuthMethods_MalformedKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := authMethods(model.ConnectionSpec{Hostname: "h", Username: "u", IdentityFile: path})
	if err == nil {
		t.Fatal("expected parse error for malformed key")
	}
}

func TestAuthMethods_ValidKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	methods, err := authMethods(model.ConnectionSpec{
		Hostname:     "h",
		Username:     "u",
		IdentityFile: writeTestKey(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected 1 auth method, got %d", len(methods))
	}
}

func TestConnect_RefusedIsBounded(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	spec := model.ConnectionSpec{
		Hostname:     "127.0.0.1",
		Username:     "u",
		Port:         addr.Port,
		IdentityFile: writeTestKey(t),
	}
	start := time.Now()
	_, err = Connect(spec, 2*time.Second)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("connect did not respect timeout, took %s", elapsed)
	}
}
