// Package service wires config resolution, the SSH tunnel, the remote file
// server and the HTTP proxy into one supervised lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/treykane/data-proxy/internal/appconfig"
	"github.com/treykane/data-proxy/internal/events"
	"github.com/treykane/data-proxy/internal/model"
	"github.com/treykane/data-proxy/internal/proxy"
	"github.com/treykane/data-proxy/internal/remote"
	"github.com/treykane/data-proxy/internal/sshclient"
	"github.com/treykane/data-proxy/internal/tunnel"
)

// Options configures a Service run.
type Options struct {
	Spec       model.ConnectionSpec
	DataPath   string
	LocalPort  int
	RemotePort int
	ListenPort int
	App        appconfig.Config
}

// Connector establishes the authenticated SSH connection. Production code
// uses sshclient.Connect; tests substitute fakes.
type Connector func(spec model.ConnectionSpec, timeout time.Duration) (Conn, error)

// Conn is the subset of *sshclient.Client the service depends on.
type Conn interface {
	Dial(network, addr string) (net.Conn, error)
	Run(cmd string) error
	Start(cmd string) error
	Close() error
}

// Service owns the startup sequence (resolve -> connect -> tunnel -> remote
// server -> HTTP) and the reverse teardown. There is exactly one instance per
// process and it is passed explicitly to whoever needs it; no globals.
type Service struct {
	opts    Options
	connect Connector
	journal *events.Store

	mu        sync.Mutex
	state     model.ServiceState
	conn      Conn
	forwarder *tunnel.Forwarder
	httpSrv   *http.Server
	httpErr   chan error
}

// SSHConnector is the production Connector backed by sshclient.
func SSHConnector(spec model.ConnectionSpec, timeout time.Duration) (Conn, error) {
	return sshclient.Connect(spec, timeout)
}

// New creates an unstarted service. A nil connect falls back to SSHConnector;
// tests inject fakes the same way the tunnel manager takes its dialer.
func New(opts Options, connect Connector) *Service {
	if connect == nil {
		connect = SSHConnector
	}
	return &Service{
		opts:    opts,
		connect: connect,
		journal: events.NewStore(),
		state:   model.ServiceUnstarted,
	}
}

// State returns the current lifecycle state.
func (s *Service) State() model.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TunnelStatus reports the forwarder's snapshot, zero-valued before start.
func (s *Service) TunnelStatus() model.TunnelStatus {
	s.mu.Lock()
	f := s.forwarder
	s.mu.Unlock()
	if f == nil {
		return model.TunnelStatus{State: model.TunnelUnstarted}
	}
	return f.Status()
}

// Start runs the startup sequence. Each step failing unwinds everything
// acquired so far before the error is returned; the caller exits non-zero.
func (s *Service) Start(ctx context.Context) error {
	s.setState(model.ServiceStarting)
	s.record("starting", "")

	if err := s.startSequence(ctx); err != nil {
		s.teardown()
		s.setState(model.ServiceFailed)
		s.record("failed", err.Error())
		return err
	}

	s.setState(model.ServiceRunning)
	s.record("serving", fmt.Sprintf("http://127.0.0.1:%d/data/", s.opts.ListenPort))
	slog.Info("data proxy running",
		"host", s.opts.Spec.Hostname,
		"listen_port", s.opts.ListenPort,
		"local_port", s.opts.LocalPort,
		"remote_port", s.opts.RemotePort,
	)
	return nil
}

func (s *Service) startSequence(ctx context.Context) error {
	conn, err := s.connect(s.opts.Spec, s.opts.App.SSHTimeout())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.record("connected", s.opts.Spec.Addr())

	fwd := tunnel.NewForwarder(conn, s.opts.LocalPort, s.opts.RemotePort)
	if err := fwd.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.forwarder = fwd
	s.mu.Unlock()
	s.record("tunnel_up", fwd.LocalAddr())

	ctl := remote.NewController(conn, s.opts.App.Remote.ServeCommand, s.opts.App.Remote.KillPattern)
	if err := ctl.EnsureServer(s.opts.DataPath, s.opts.RemotePort); err != nil {
		return err
	}
	s.record("remote_started", s.opts.DataPath)

	if err := s.waitReady(ctx, fwd.LocalAddr()); err != nil {
		// The original design accepted traffic immediately after launch, so
		// a failed probe degrades to that behavior instead of aborting.
		slog.Warn("remote server readiness probe failed, serving anyway", "error", err)
	} else {
		s.record("ready", fwd.LocalAddr())
	}

	return s.startHTTP()
}

// waitReady polls the tunnel's local endpoint until the remote server accepts
// a connection or the bounded timeout elapses.
func (s *Service) waitReady(ctx context.Context, addr string) error {
	timeout := s.opts.App.ReadyTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		d := net.Dialer{Timeout: time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("not ready within %s: %w", timeout, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *Service) startHTTP() error {
	srv := proxy.NewServer(s.opts.Spec, s.opts.LocalPort)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.ListenPort))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.mu.Lock()
	s.httpSrv = httpSrv
	s.httpErr = errCh
	s.mu.Unlock()
	return nil
}

// Wait blocks until the context is cancelled (interrupt) or the HTTP server
// fails, then runs the teardown sequence. Returns nil on a signal-driven
// shutdown so the process can exit 0.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	errCh := s.httpErr
	s.mu.Unlock()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	s.Stop()
	return runErr
}

// Stop tears down in reverse acquisition order: in-flight HTTP responses,
// the tunnel, then the SSH connection. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state == model.ServiceStopped || s.state == model.ServiceStopping {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = model.ServiceStopping
	s.mu.Unlock()

	s.teardown()

	s.setState(model.ServiceStopped)
	if prev == model.ServiceRunning {
		s.record("stopped", "")
		slog.Info("data proxy stopped")
	}
}

func (s *Service) teardown() {
	s.mu.Lock()
	httpSrv := s.httpSrv
	fwd := s.forwarder
	conn := s.conn
	s.httpSrv = nil
	s.forwarder = nil
	s.conn = nil
	s.mu.Unlock()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(ctx); err != nil {
			_ = httpSrv.Close()
		}
		cancel()
	}
	if fwd != nil {
		fwd.Stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Warn("ssh close failed", "error", err)
		}
	}
}

func (s *Service) setState(st model.ServiceState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) record(eventType, message string) {
	evt := events.Event{
		Timestamp: time.Now().UTC(),
		HostAlias: s.opts.Spec.Alias,
		Hostname:  s.opts.Spec.Hostname,
		EventType: eventType,
		Message:   message,
	}
	if err := s.journal.Append(evt); err != nil {
		slog.Warn("failed to record lifecycle event", "error", err)
	}
}
