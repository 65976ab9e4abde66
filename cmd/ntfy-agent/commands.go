package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ntfyagent "github.com/bsantraigi/ntfy-agent"
	"github.com/bsantraigi/ntfy-agent/internal/config"
	"github.com/bsantraigi/ntfy-agent/internal/filter"
	"github.com/bsantraigi/ntfy-agent/internal/history"
	"github.com/bsantraigi/ntfy-agent/internal/history/factory"
	"github.com/bsantraigi/ntfy-agent/internal/logger"
	"github.com/bsantraigi/ntfy-agent/internal/metrics"
	"github.com/bsantraigi/ntfy-agent/internal/monitor"
	"github.com/bsantraigi/ntfy-agent/internal/notifier"
	"github.com/bsantraigi/ntfy-agent/internal/server"
	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
	"github.com/bsantraigi/ntfy-agent/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	State string
	JSON  bool
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "ntfy-agent",
		Short:         "Watch ML training processes and push ntfy notifications when they end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "config.toml", "path to TOML config file")

	root.AddCommand(
		createServeCommand(gf),
		createStatusCommand(gf),
		createTopCommand(gf),
		createVersionCommand(),
	)
	return root
}

func createServeCommand(gf *GlobalFlags) *cobra.Command {
	sf := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(gf.ConfigPath)
			if err != nil {
				return err
			}
			if sf.Daemonize {
				if err := daemonize(sf.PidFile, sf.LogFile); err != nil {
					return err
				}
			}
			return runServe(cfg, sf)
		},
	}
	cmd.Flags().BoolVar(&sf.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&sf.PidFile, "pidfile", "", "write daemon PID to this file")
	cmd.Flags().StringVar(&sf.LogFile, "logfile", "", "redirect daemon stdout/stderr to this file")
	return cmd
}

func runServe(cfg *config.Config, sf *ServeFlags) error {
	lg, logCloser, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Warn("metrics registration failed", "err", err)
	}

	var journal history.Sink
	if cfg.History != nil && cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		journal = sink
		if c, ok := sink.(interface{ Close() error }); ok {
			defer func() { _ = c.Close() }()
		}
	}

	nt, err := notifier.New(cfg.NotifierConfig())
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	var gpu snapshot.GPUQuerier
	if cfg.GPU != nil && cfg.GPU.Enabled {
		gpu = &snapshot.NvidiaSMI{Path: cfg.GPU.SMIPath, Timeout: cfg.GPU.Timeout}
	}
	st := store.New(cfg.StateFile)

	mon, err := monitor.New(monitor.Options{
		Config: monitor.Config{
			Interval:      cfg.Interval,
			NotifyOnStart: cfg.NotifyOnStart,
			PruneAfter:    cfg.PruneAfter,
		},
		Source:   snapshot.NewSystemSource(gpu),
		Filter:   filter.New(cfg.Patterns),
		Tracker:  tracker.New(cfg.TrackerConfig()),
		Store:    st,
		Notifier: nt,
		Journal:  journal,
		Logger:   lg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var servers []*http.Server
	if cfg.Server != nil && cfg.Server.Listen != "" {
		srv := server.NewServer(cfg.Server.Listen, st, mon)
		servers = append(servers, srv)
		lg.Info("status server listening", "addr", cfg.Server.Listen)
	}
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() { _ = srv.ListenAndServe() }()
		servers = append(servers, srv)
		lg.Info("metrics server listening", "addr", cfg.Metrics.Listen)
	}

	runErr := mon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	if sf.PidFile != "" {
		_ = removePidFile(sf.PidFile)
	}
	return runErr
}

func createStatusCommand(gf *GlobalFlags) *cobra.Command {
	sf := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the tracked-set from the daemon's state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(gf.ConfigPath)
			if err != nil {
				return err
			}
			set, err := store.New(cfg.StateFile).Load()
			if err != nil {
				return err
			}
			procs := make([]*tracker.TrackedProcess, 0, set.Len())
			for _, p := range set.Procs {
				if sf.State != "" && sf.State != string(p.State) {
					continue
				}
				procs = append(procs, p)
			}
			sort.Slice(procs, func(i, j int) bool {
				return procs[i].Key.String() < procs[j].Key.String()
			})

			if sf.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(procs)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PID\tUSER\tSTATE\tCPU%\tRUNTIME\tCOMMAND")
			now := time.Now()
			for _, p := range procs {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%s\t%s\n",
					p.Key.PID, p.User, p.State, p.Metrics.CPUPercent,
					notifier.FormatDuration(p.Runtime(now)), p.Cmdline)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&sf.State, "state", "", "filter by state (running, unknown, finished, crashed)")
	cmd.Flags().BoolVar(&sf.JSON, "json", false, "output JSON")
	return cmd
}

func createTopCommand(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Interactive dashboard over the tracked-set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(gf.ConfigPath)
			if err != nil {
				return err
			}
			return ui.Run(store.New(cfg.StateFile))
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ntfy-agent %s\n", ntfyagent.Version)
		},
	}
}
