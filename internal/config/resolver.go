package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/treykane/data-proxy/internal/model"
)

// ConfigError reports that connection parameters could not be resolved.
// It is fatal: the service cannot start without a usable ConnectionSpec.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// Explicit holds caller-supplied connection parameters.
type Explicit struct {
	Host    string
	User    string
	KeyPath string
	Port    int
}

// ResolveAlias looks up an alias in the ssh config file at path and produces
// a ConnectionSpec. A missing config file is not fatal; the alias itself is
// used as the hostname and defaults apply, matching OpenSSH lookup behavior.
// The caller layer enforces "exactly one of alias or explicit host" before
// this runs.
func ResolveAlias(path, alias string) (model.ConnectionSpec, error) {
	if strings.TrimSpace(alias) == "" {
		return model.ConnectionSpec{}, &ConfigError{Reason: "empty host alias"}
	}
	entry, matched, warnings, err := lookupHost(path, alias)
	if err != nil {
		return model.ConnectionSpec{}, fmt.Errorf("parse ssh config: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("ssh config", "warning", w)
	}
	if !matched {
		// No Host block covers the alias, not even a wildcard. OpenSSH would
		// still connect using the alias as the hostname, so mirror that
		// instead of failing.
		slog.Warn("alias not found in ssh config, using defaults", "alias", alias)
	}

	spec := model.ConnectionSpec{
		Hostname:     entry.DisplayTarget(),
		Username:     entry.User,
		IdentityFile: entry.IdentityFile,
		Port:         entry.Port,
		FromAlias:    true,
		Alias:        alias,
	}
	if err := validate(spec); err != nil {
		return model.ConnectionSpec{}, err
	}
	return spec, nil
}

// ResolveExplicit produces a ConnectionSpec from caller-supplied parameters.
func ResolveExplicit(p Explicit) (model.ConnectionSpec, error) {
	port := p.Port
	if port <= 0 {
		port = 22
	}
	spec := model.ConnectionSpec{
		Hostname:     strings.TrimSpace(p.Host),
		Username:     strings.TrimSpace(p.User),
		IdentityFile: ExpandHome(p.KeyPath),
		Port:         port,
	}
	if err := validate(spec); err != nil {
		return model.ConnectionSpec{}, err
	}
	return spec, nil
}

func validate(spec model.ConnectionSpec) error {
	if spec.Hostname == "" {
		return &ConfigError{Reason: "no hostname resolved"}
	}
	if spec.Username == "" {
		return &ConfigError{Reason: fmt.Sprintf("no username resolved for host %s", spec.Hostname)}
	}
	return nil
}
