package model

import (
	"net"
	"strconv"
	"time"
)

// ConnectionSpec holds the resolved SSH connection parameters for the remote
// host. It is produced once at startup — either from a ~/.ssh/config alias or
// from explicit CLI parameters — and is read-only afterwards.
type ConnectionSpec struct {
	Hostname     string `json:"hostname"`
	Username     string `json:"username"`
	IdentityFile string `json:"identity_file,omitempty"`
	Port         int    `json:"port,omitempty"`

	// FromAlias is true when the spec was resolved via an ssh config alias
	// rather than explicit parameters. Reported by /health.
	FromAlias bool `json:"from_alias"`

	// Alias is the config alias used for resolution, empty for explicit specs.
	Alias string `json:"alias,omitempty"`
}

// Addr returns the host:port dial target for the SSH connection.
func (s ConnectionSpec) Addr() string {
	port := s.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(s.Hostname, strconv.Itoa(port))
}

// HostEntry is a normalized host configuration extracted from ssh config.
type HostEntry struct {
	Alias        string `json:"alias"`
	HostName     string `json:"host_name"`
	User         string `json:"user,omitempty"`
	Port         int    `json:"port,omitempty"`
	IdentityFile string `json:"identity_file,omitempty"`
	ProxyJump    string `json:"proxy_jump,omitempty"`
}

func (h HostEntry) DisplayTarget() string {
	if h.HostName != "" {
		return h.HostName
	}
	return h.Alias
}

type TunnelState string

const (
	TunnelUnstarted TunnelState = "unstarted"
	TunnelActive    TunnelState = "active"
	TunnelStopped   TunnelState = "stopped"
	TunnelFailed    TunnelState = "failed"
)

// TunnelStatus is a read-only snapshot of the tunnel's runtime state.
type TunnelStatus struct {
	LocalPort  int         `json:"local_port"`
	RemotePort int         `json:"remote_port"`
	State      TunnelState `json:"state"`
	StartedAt  time.Time   `json:"-"`
	UptimeSec  int64       `json:"uptime_seconds"`
	ActiveFwds int         `json:"active_forwards"`
	LastError  string      `json:"last_error,omitempty"`
}

// ServiceState tracks the proxy service through its lifecycle. Transitions:
// unstarted -> starting -> running -> stopping -> stopped, plus
// starting -> failed when any startup step errors out.
type ServiceState string

const (
	ServiceUnstarted ServiceState = "unstarted"
	ServiceStarting  ServiceState = "starting"
	ServiceRunning   ServiceState = "running"
	ServiceStopping  ServiceState = "stopping"
	ServiceStopped   ServiceState = "stopped"
	ServiceFailed    ServiceState = "failed"
)
