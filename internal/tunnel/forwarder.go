// Package tunnel manages the local listener whose connections are forwarded
// over SSH channels to the remote file server.
package tunnel

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/treykane/data-proxy/internal/model"
	"github.com/treykane/data-proxy/internal/util"
)

// RemoteDialer opens a stream to an address as seen from the remote host.
// *sshclient.Client satisfies this; tests substitute direct TCP dials.
type RemoteDialer interface {
	Dial(network, addr string) (net.Conn, error)
}

// TunnelError wraps failures during tunnel bind or channel open. It is fatal
// at startup: the service tears everything down when it sees one.
type TunnelError struct {
	Op  string
	Err error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("tunnel %s: %v", e.Op, e.Err)
}

func (e *TunnelError) Unwrap() error { return e.Err }

// Forwarder binds a loopback listener and forwards every accepted connection
// through the RemoteDialer to 127.0.0.1:remotePort on the remote side. Each
// accepted connection is an independent forwarded stream; nothing serializes
// them beyond the shared SSH connection's own multiplexing.
type Forwarder struct {
	dialer     RemoteDialer
	localPort  int
	remotePort int

	mu        sync.Mutex
	ln        net.Listener
	conns     map[net.Conn]struct{}
	state     model.TunnelState
	startedAt time.Time
	lastErr   string
	wg        sync.WaitGroup
}

// NewForwarder creates an unstarted forwarder.
func NewForwarder(dialer RemoteDialer, localPort, remotePort int) *Forwarder {
	return &Forwarder{
		dialer:     dialer,
		localPort:  localPort,
		remotePort: remotePort,
		conns:      make(map[net.Conn]struct{}),
		state:      model.TunnelUnstarted,
	}
}

// LocalAddr returns the loopback endpoint the forwarder serves on.
func (f *Forwarder) LocalAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", f.localPort)
}

// Start binds the local listener and begins accepting. It returns once the
// listener is bound; forwarding itself runs in the background.
func (f *Forwarder) Start() error {
	if err := util.ValidatePort(f.localPort); err != nil {
		return &TunnelError{Op: "start", Err: fmt.Errorf("invalid local port: %w", err)}
	}
	if err := util.ValidatePort(f.remotePort); err != nil {
		return &TunnelError{Op: "start", Err: fmt.Errorf("invalid remote port: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == model.TunnelActive {
		return nil
	}

	ln, err := net.Listen("tcp", f.LocalAddr())
	if err != nil {
		f.state = model.TunnelFailed
		f.lastErr = err.Error()
		return &TunnelError{Op: "bind", Err: err}
	}
	f.ln = ln
	f.state = model.TunnelActive
	f.startedAt = time.Now()
	f.lastErr = ""

	f.wg.Add(1)
	go f.acceptLoop(ln)
	return nil
}

func (f *Forwarder) acceptLoop(ln net.Listener) {
	defer f.wg.Done()
	for {
		local, err := ln.Accept()
		if err != nil {
			// Listener closed during Stop, or a hard accept failure.
			f.mu.Lock()
			if f.state == model.TunnelActive {
				f.state = model.TunnelFailed
				f.lastErr = err.Error()
				slog.Warn("tunnel accept failed", "error", err)
			}
			f.mu.Unlock()
			return
		}
		f.track(local)
		f.wg.Add(1)
		go f.forward(local)
	}
}

func (f *Forwarder) forward(local net.Conn) {
	defer f.wg.Done()
	defer f.untrack(local)
	defer local.Close()

	remoteAddr := fmt.Sprintf("127.0.0.1:%d", f.remotePort)
	remote, err := f.dialer.Dial("tcp", remoteAddr)
	if err != nil {
		slog.Warn("tunnel channel open failed", "remote", remoteAddr, "error", err)
		return
	}
	defer remote.Close()

	// Bidirectional copy. Either side closing ends the stream; closing both
	// conns unblocks the slower copier.
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}

func (f *Forwarder) track(c net.Conn) {
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()
}

func (f *Forwarder) untrack(c net.Conn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

// Stop closes the listener and all forwarded streams. Idempotent: safe to
// call repeatedly, and safe on a forwarder that never started.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.state != model.TunnelActive && f.state != model.TunnelFailed {
		if f.state == model.TunnelUnstarted {
			f.state = model.TunnelStopped
		}
		f.mu.Unlock()
		return
	}
	if f.ln != nil {
		_ = f.ln.Close()
		f.ln = nil
	}
	for c := range f.conns {
		_ = c.Close()
	}
	f.state = model.TunnelStopped
	f.mu.Unlock()

	f.wg.Wait()
}

// Status returns a read-only snapshot of the forwarder's runtime state.
func (f *Forwarder) Status() model.TunnelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := model.TunnelStatus{
		LocalPort:  f.localPort,
		RemotePort: f.remotePort,
		State:      f.state,
		StartedAt:  f.startedAt,
		ActiveFwds: len(f.conns),
		LastError:  f.lastErr,
	}
	if f.state == model.TunnelActive && !f.startedAt.IsZero() {
		st.UptimeSec = int64(time.Since(f.startedAt).Seconds())
	}
	return st
}
