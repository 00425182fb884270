// Package util provides common utility functions and constants used across
// the data-proxy application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// MaxIncludeDepth is the maximum nesting level for SSH config Include
	// directives. Prevents infinite recursion when config files form an
	// include cycle that escapes cycle detection (e.g. via symlinks that
	// resolve to different absolute paths).
	// Used by: internal/config/parser.go (parseRecursive).
	MaxIncludeDepth = 16

	// DefaultSSHTimeout bounds the SSH TCP dial plus handshake. Without it a
	// firewalled host would hang the whole startup sequence indefinitely.
	// Used by: internal/sshclient (ClientConfig.Timeout).
	DefaultSSHTimeout = 15 * time.Second

	// DefaultReadyTimeout bounds the post-launch readiness probe against the
	// tunnel's local endpoint. The remote file server usually accepts within
	// a second or two; probe failure is logged, not fatal.
	// Used by: internal/service (waitReady).
	DefaultReadyTimeout = 10 * time.Second

	// ProxyCopyBufferSize is the chunk size used when streaming upstream
	// response bodies to clients. Bounds per-request memory regardless of
	// file size.
	// Used by: internal/proxy (streamBody).
	ProxyCopyBufferSize = 32 * 1024
)
