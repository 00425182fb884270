// Package remote manages the file-serving process on the SSH host.
package remote

import (
	"fmt"
	"log/slog"
	"strings"
)

// CommandRunner executes commands on the remote host. *sshclient.Client
// satisfies this; tests substitute a recorder.
type CommandRunner interface {
	// Run executes a command and waits for it.
	Run(cmd string) error
	// Start dispatches a command without waiting for completion.
	Start(cmd string) error
}

// CommandError reports a failed remote command. Kill failures are expected
// (no stale server, or no pkill on the host) and are logged, never fatal.
type CommandError struct {
	Cmd string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Controller launches the remote file server. Lifecycle is fire and forget:
// no PID is tracked, and stale instances are cleared by pattern match before
// each launch.
type Controller struct {
	runner CommandRunner

	// ServeCommand and KillPattern are fmt templates receiving the remote
	// port. Defaults match the python http.server convention.
	ServeCommand string
	KillPattern  string
}

// NewController creates a controller using the given runner and command
// templates. Empty templates fall back to the python http.server defaults.
func NewController(runner CommandRunner, serveCommand, killPattern string) *Controller {
	if serveCommand == "" {
		serveCommand = "python3 -m http.server %d"
	}
	if killPattern == "" {
		killPattern = "python -m http.server %d"
	}
	return &Controller{runner: runner, ServeCommand: serveCommand, KillPattern: killPattern}
}

// EnsureServer makes a fresh file server serve dataPath on remotePort.
// A stale instance on the port is terminated best-effort first; the new one
// is launched detached with output discarded, so it survives the SSH session.
func (c *Controller) EnsureServer(dataPath string, remotePort int) error {
	if strings.TrimSpace(dataPath) == "" {
		return fmt.Errorf("remote: empty data path")
	}

	kill := fmt.Sprintf("pkill -f '%s'", fmt.Sprintf(c.KillPattern, remotePort))
	if err := c.runner.Run(kill); err != nil {
		// pkill exits non-zero when nothing matched, and the host may not
		// have pkill at all. Either way the launch proceeds.
		slog.Debug("stale server cleanup skipped", "error", &CommandError{Cmd: kill, Err: err})
	}

	serve := fmt.Sprintf(c.ServeCommand, remotePort)
	launch := fmt.Sprintf("cd %s && nohup %s > /dev/null 2>&1 &", dataPath, serve)
	if err := c.runner.Start(launch); err != nil {
		return &CommandError{Cmd: launch, Err: err}
	}
	slog.Info("remote file server launched", "data_path", dataPath, "remote_port", remotePort)
	return nil
}
