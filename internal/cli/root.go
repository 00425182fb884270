// Package cli provides the command-line interface for data-proxy.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/data-proxy/internal/appconfig"
	"github.com/treykane/data-proxy/internal/config"
	"github.com/treykane/data-proxy/internal/doctor"
	"github.com/treykane/data-proxy/internal/events"
	"github.com/treykane/data-proxy/internal/history"
	"github.com/treykane/data-proxy/internal/model"
	"github.com/treykane/data-proxy/internal/service"
	"github.com/treykane/data-proxy/internal/util"
)

type serveFlags struct {
	hostAlias  string
	host       string
	username   string
	keyPath    string
	dataPath   string
	localPort  int
	remotePort int
	listenPort int
}

// NewRootCommand creates the root cobra command. Running it with no
// subcommand starts the proxy service.
func NewRootCommand() *cobra.Command {
	var flags serveFlags
	var verbose bool

	root := &cobra.Command{
		Use:   "data-proxy",
		Short: "Serve files on an SSH-reachable host over local HTTP",
		Long: `data-proxy opens an SSH tunnel to a remote host, starts a file server
there, and re-exposes it through a local streaming HTTP endpoint:

  data-proxy --ssh-host-alias cluster --data-path /srv/data
  curl localhost:5000/data/report.pdf`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.Flags().StringVar(&flags.hostAlias, "ssh-host-alias", "", "SSH host alias from ~/.ssh/config")
	root.Flags().StringVar(&flags.host, "ssh-host", "", "SSH hostname")
	root.Flags().StringVar(&flags.username, "ssh-username", "", "SSH username (required with --ssh-host)")
	root.Flags().StringVar(&flags.keyPath, "ssh-key-path", "", "path to SSH private key (optional with --ssh-host)")
	root.Flags().StringVar(&flags.dataPath, "data-path", "", "path to data on the remote server")
	root.Flags().IntVar(&flags.localPort, "local-port", 8000, "local port for the SSH tunnel")
	root.Flags().IntVar(&flags.remotePort, "remote-port", 8001, "remote port for the file server")
	root.Flags().IntVar(&flags.listenPort, "listen-port", 5000, "local HTTP listen port")
	root.MarkFlagsMutuallyExclusive("ssh-host-alias", "ssh-host")
	_ = root.MarkFlagRequired("data-path")

	root.AddCommand(newHostsCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func runServe(ctx context.Context, flags serveFlags) error {
	spec, err := resolveSpec(flags)
	if err != nil {
		return err
	}
	for _, p := range []int{flags.localPort, flags.remotePort, flags.listenPort} {
		if err := util.ValidatePort(p); err != nil {
			return err
		}
	}

	appCfg, err := appconfig.Load()
	if err != nil {
		slog.Warn("using default app config", "error", err)
		appCfg = appconfig.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New(service.Options{
		Spec:       spec,
		DataPath:   flags.dataPath,
		LocalPort:  flags.localPort,
		RemotePort: flags.remotePort,
		ListenPort: flags.listenPort,
		App:        appCfg,
	}, nil)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	if spec.FromAlias {
		if err := history.Touch(spec.Alias); err != nil {
			slog.Warn("failed to record host history", "error", err)
		}
	}
	fmt.Printf("serving %s:%s at http://localhost:%d/data/\n", spec.Hostname, flags.dataPath, flags.listenPort)

	return svc.Wait(ctx)
}

func resolveSpec(flags serveFlags) (model.ConnectionSpec, error) {
	switch {
	case flags.hostAlias != "":
		path, err := config.DefaultPath()
		if err != nil {
			return model.ConnectionSpec{}, err
		}
		return config.ResolveAlias(path, flags.hostAlias)
	case flags.host != "":
		if flags.username == "" {
			return model.ConnectionSpec{}, fmt.Errorf("--ssh-username is required when using --ssh-host")
		}
		return config.ResolveExplicit(config.Explicit{
			Host:    flags.host,
			User:    flags.username,
			KeyPath: flags.keyPath,
		})
	default:
		return model.ConnectionSpec{}, fmt.Errorf("one of --ssh-host-alias or --ssh-host is required")
	}
}

func newHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List hosts parsed from ~/.ssh/config",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.ParseDefault()
			if err != nil {
				return err
			}
			lastServed, err := history.LastServed()
			if err != nil {
				slog.Warn("failed to load host history", "error", err)
			}
			hosts := history.SortHostsRecent(res.Hosts, lastServed)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %-28s %-8s %-16s %s\n", "ALIAS", "HOSTNAME", "PORT", "USER", "LAST SERVED")
			for _, h := range hosts {
				fmt.Fprintf(out, "%-24s %-28s %-8d %-16s %s\n",
					h.Alias, h.DisplayTarget(), h.Port, util.EmptyDash(h.User), formatLastServed(lastServed[h.Alias]))
			}
			if len(res.Warnings) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "warnings:")
				for _, w := range res.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", w)
				}
			}
			return nil
		},
	}
}

func formatLastServed(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}

func newEventsCmd() *cobra.Command {
	var (
		hostAlias string
		eventType string
		sinceStr  string
		limit     int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show service lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{HostAlias: hostAlias, EventType: eventType, Limit: limit}
			if sinceStr != "" {
				d, err := time.ParseDuration(sinceStr)
				if err != nil {
					return fmt.Errorf("invalid --since duration: %w", err)
				}
				q.Since = time.Now().Add(-d).UTC()
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			fmt.Fprintf(out, "%-22s %-16s %-16s %s\n", "TIMESTAMP", "HOST", "EVENT", "MESSAGE")
			for _, e := range evts {
				host := e.HostAlias
				if host == "" {
					host = e.Hostname
				}
				fmt.Fprintf(out, "%-22s %-16s %-16s %s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), util.EmptyDash(host), e.EventType, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hostAlias, "host", "", "filter by host alias")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&sinceStr, "since", "", "only events newer than this duration (e.g. 2h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var (
		localPort  int
		listenPort int
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local preflight diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := doctor.Run(doctor.Options{LocalPort: localPort, ListenPort: listenPort})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			if len(rep.Issues) == 0 {
				fmt.Fprintln(out, "no issues found")
				return nil
			}
			fmt.Fprintf(out, "%-8s %-16s %-20s %s\n", "SEV", "CHECK", "TARGET", "MESSAGE")
			for _, i := range rep.Issues {
				fmt.Fprintf(out, "%-8s %-16s %-20s %s\n", i.Severity, i.Check, i.Target, i.Message)
			}
			if rep.HasHigh() {
				return fmt.Errorf("doctor found high severity issues")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&localPort, "local-port", 8000, "tunnel port to probe")
	cmd.Flags().IntVar(&listenPort, "listen-port", 5000, "HTTP port to probe")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}
