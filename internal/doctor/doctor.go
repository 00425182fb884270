// Package doctor runs local preflight diagnostics for data-proxy.
package doctor

import (
	"fmt"
	"net"
	"os"
	"sort"

	"github.com/treykane/data-proxy/internal/config"
	"github.com/treykane/data-proxy/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Options selects what to diagnose. A zero LocalPort/ListenPort skips the
// port checks.
type Options struct {
	ConfigPath string
	LocalPort  int
	ListenPort int
}

// Run executes local diagnostics: ssh config health, identity file
// permissions, and availability of the ports the proxy needs to bind.
func Run(opts Options) (Report, error) {
	var issues []Issue

	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return Report{}, err
		}
		path = p
	}

	res, err := config.ParseFile(path)
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-parse",
			Target:         path,
			Message:        err.Error(),
			Recommendation: "fix the SSH config file so aliases can be resolved",
		})
	} else {
		for _, w := range res.Warnings {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "config-warning",
				Target:         path,
				Message:        w,
				Recommendation: "fix malformed/unsupported SSH config directives",
			})
		}
		for _, h := range res.Hosts {
			issues = append(issues, identityFileIssues(h.Alias, h.IdentityFile)...)
		}
	}

	for _, p := range []struct {
		name string
		port int
	}{
		{"local-port", opts.LocalPort},
		{"listen-port", opts.ListenPort},
	} {
		if p.port == 0 {
			continue
		}
		if err := util.ValidatePort(p.port); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          p.name,
				Target:         fmt.Sprintf("%d", p.port),
				Message:        err.Error(),
				Recommendation: "choose a port between 1 and 65535",
			})
			continue
		}
		issues = append(issues, bindProbeIssues(p.name, p.port)...)
	}

	sort.Slice(issues, func(i, j int) bool {
		ri, rj := severityRank(issues[i].Severity), severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		return issues[i].Target < issues[j].Target
	})
	return Report{Issues: issues}, nil
}

// identityFileIssues flags missing or overly broad private key files.
// OpenSSH itself refuses keys readable by group/other, so a bad mode here
// means auth will fail later with a less obvious error.
func identityFileIssues(alias, identityFile string) []Issue {
	if identityFile == "" {
		return nil
	}
	st, err := os.Stat(identityFile)
	if err != nil {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "identity-file",
			Target:         alias,
			Message:        fmt.Sprintf("identity file not readable: %v", err),
			Recommendation: "verify the IdentityFile path for this host",
		}}
	}
	if mode := st.Mode().Perm(); mode&0o077 != 0 {
		return []Issue{{
			Severity:       SeverityHigh,
			Check:          "identity-file",
			Target:         alias,
			Message:        fmt.Sprintf("identity file permissions are too broad (%#o)", mode),
			Recommendation: "restrict permissions to 0600 or tighter",
		}}
	}
	return nil
}

func bindProbeIssues(check string, port int) []Issue {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return []Issue{{
			Severity:       SeverityHigh,
			Check:          check,
			Target:         fmt.Sprintf("%d", port),
			Message:        fmt.Sprintf("port is not bindable: %v", err),
			Recommendation: "stop the conflicting process or choose another port",
		}}
	}
	_ = ln.Close()
	return nil
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
