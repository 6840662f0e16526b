package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/rdpmon/internal/config"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
	"github.com/rileyhilliard/rdpmon/internal/monitor/dashboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchIntervalFlag string
	watchTimeoutFlag  string
	watchPlainFlag    bool
)

// shutdownGrace bounds how long watch waits for in-flight probes on exit.
const shutdownGrace = 3 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of sessions, processes and services",
	Long: `Refresh every server on an interval and show the results live.

On a terminal this opens a full-screen dashboard. When output is piped
(or with --plain) each completed probe is printed as one line instead.

Dashboard keys:
  r        refresh all servers now
  R/enter  refresh the selected server
  /        filter servers by name
  s        cycle sort order
  ?        help
  q        quit

Examples:
  rdpmon watch
  rdpmon watch --interval 30s
  rdpmon watch --plain | tee rdp.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchIntervalFlag, "interval", "", "refresh interval (e.g., 30s, 2m)")
	watchCmd.Flags().StringVar(&watchTimeoutFlag, "timeout", "", "per-query timeout (e.g., 10s)")
	watchCmd.Flags().BoolVar(&watchPlainFlag, "plain", false, "print one line per probe instead of the dashboard")
	rootCmd.AddCommand(watchCmd)
}

func watchCommand(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyDurations(s, watchIntervalFlag, watchTimeoutFlag); err != nil {
		return err
	}

	interactive := !watchPlainFlag && term.IsTerminal(int(os.Stdout.Fd()))

	log := logger.NewEnvLogger(logPrefix)
	if interactive {
		var closeLog func()
		log, closeLog = dashboardLogger(s)
		defer closeLog()
	}

	a, err := newApp(s, log)
	if err != nil {
		return err
	}
	defer a.Close(shutdownGrace)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := monitor.NewScheduler(a.aggregator, s.Interval,
		monitor.WithSchedulerLogger(log),
		monitor.WithBeforeFire(a.reloadRegistry))
	a.followRegistry(ctx)
	tr := i18n.New(s.Language)

	if interactive {
		return runDashboard(ctx, a, sched, tr)
	}
	return runPlain(ctx, out, a, sched, tr)
}

// dashboardLogger keeps log lines off the alternate screen: they go to
// log_file when set, otherwise nowhere. The returned func releases the file.
func dashboardLogger(s *config.Settings) (logger.Logger, func()) {
	if s.LogFile == "" {
		return logger.Noop(), func() {}
	}
	l, err := logger.NewFileLogger(logPrefix, s.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdpmon: %v, logging disabled\n", err)
		return logger.Noop(), func() {}
	}
	return l, func() { _ = l.Close() }
}

func runDashboard(ctx context.Context, a *app, sched *monitor.Scheduler, tr *i18n.Translator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	model := dashboard.New(ctx, a.aggregator, sched, tr)
	defer model.Close()

	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()

	cancel()
	if schedErr := <-schedDone; err == nil {
		err = schedErr
	}
	return err
}

type tick struct {
	last, next time.Time
}

// runPlain prints the refresh schedule and every completed probe until ctx
// is cancelled.
func runPlain(ctx context.Context, out io.Writer, a *app, sched *monitor.Scheduler, tr *i18n.Translator) error {
	updates, unsubscribe := a.aggregator.Subscribe()
	defer unsubscribe()

	// Ticks are handed to this goroutine so only one writer touches out.
	ticks := make(chan tick, 4)
	sched.OnTick(func(last, next time.Time) {
		select {
		case ticks <- tick{last, next}:
		default:
		}
	})

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return <-schedDone

		case t := <-ticks:
			fmt.Fprintln(out, dashboard.RefreshIndicator(tr, t.last, t.next))

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.Removed || u.Status.Refreshing || u.Status.LastRefresh.IsZero() {
				continue
			}
			fmt.Fprintln(out, plainLine(tr, u.Status))
		}
	}
}
