// Package sshclient provides the authenticated SSH connection shared by the
// tunnel and the remote process controller.
//
// Unlike tools that shell out to the system ssh binary, this package speaks
// the protocol in-process via golang.org/x/crypto/ssh. One authenticated
// connection carries both the channel-backed port forwards and the exec
// sessions used to manage the remote file server, so there is exactly one
// network peer to tear down on shutdown.
//
// Authentication is key-based only: an identity file when one is configured,
// otherwise any keys held by a running ssh-agent. There is no interactive
// prompt path.
package sshclient

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/treykane/data-proxy/internal/model"
)

// Client wraps an established SSH connection. Safe for concurrent use: the
// underlying ssh.Client multiplexes channels, so forwards and exec sessions
// can proceed in parallel.
type Client struct {
	mu     sync.Mutex
	conn   *ssh.Client
	closed bool
}

// Connect dials and authenticates against the host described by spec. The
// timeout bounds the TCP dial and the SSH handshake together; a zero timeout
// falls back to a sane default rather than hanging forever.
func Connect(spec model.ConnectionSpec, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	auth, err := authMethods(spec)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User: spec.Username,
		Auth: auth,
		// Host key verification is intentionally skipped: the original
		// deployment model targets hosts already trusted via ~/.ssh, and a
		// first-connect prompt is impossible in a headless service.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	conn, err := ssh.Dial("tcp", spec.Addr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", spec.Addr(), err)
	}
	return &Client{conn: conn}, nil
}

func authMethods(spec model.ConnectionSpec) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if spec.IdentityFile != "" {
		key, err := os.ReadFile(spec.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse identity file %s: %w", spec.IdentityFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if ag, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(ag).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable key auth for %s: no identity file and no ssh-agent", spec.Hostname)
	}
	return methods, nil
}

// Dial opens a channel-backed connection from the remote side to addr.
// Each call yields an independent stream over the shared SSH connection.
func (c *Client) Dial(network, addr string) (net.Conn, error) {
	return c.conn.Dial(network, addr)
}

// Run executes cmd on the remote host in a fresh session and waits for it.
// Output is discarded; a non-zero exit status surfaces as the returned error.
func (c *Client) Run(cmd string) error {
	sess, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("run %q: %w", cmd, err)
	}
	return nil
}

// Start executes cmd on the remote host without waiting for it to finish.
// The session is closed immediately after the command is dispatched, which is
// how detached launches (nohup ... &) are issued: the remote process must not
// depend on the session staying open.
func (c *Client) Start(cmd string) error {
	sess, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	if err := sess.Start(cmd); err != nil {
		return fmt.Errorf("start %q: %w", cmd, err)
	}
	return nil
}

// Close tears down the SSH connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
