// Package main is the entry point for the data-proxy binary.
//
// data-proxy exposes files on an SSH-reachable host through a local HTTP
// endpoint. It resolves the connection from ~/.ssh/config (or explicit
// flags), opens an SSH tunnel, starts a static file server on the remote
// side, and streams /data/<path> requests through the tunnel.
//
// Usage:
//
//	data-proxy --ssh-host-alias cluster --data-path /srv/data
//	data-proxy hosts    # list aliases parsed from ~/.ssh/config
//	data-proxy events   # show recent lifecycle events
//	data-proxy doctor   # run local preflight diagnostics
//
// The command tree is constructed in internal/cli; this file wires it up
// and handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"github.com/treykane/data-proxy/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()

	// Any error returned by a RunE handler is printed to stderr and the
	// process exits with a non-zero status code.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
