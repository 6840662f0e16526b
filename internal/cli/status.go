package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
	"github.com/rileyhilliard/rdpmon/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	statusJSON        bool
	statusFilterFlag  string
	statusTimeoutFlag string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Refresh every server once and print the result",
	Long: `Probe every server (or those matching --filter) once, wait for all
probes to finish, and print a table. With --json the result is wrapped
in the standard {success, data, error} envelope.

Examples:
  rdpmon status
  rdpmon status --filter dc
  rdpmon status --json | jq '.data.alerts'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		err := statusCommand(cmd.Context(), out)
		if err != nil && statusJSON {
			if werr := WriteJSONFromError(out, err); werr != nil {
				return werr
			}
			return errReported
		}
		return err
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output in JSON format")
	statusCmd.Flags().StringVar(&statusFilterFlag, "filter", "", "only servers whose name contains this text")
	statusCmd.Flags().StringVar(&statusTimeoutFlag, "timeout", "", "per-query timeout (e.g., 10s)")
	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON payload of `rdpmon status --json`.
type StatusOutput struct {
	Servers   []ServerJSON `json:"servers"`
	Alerts    int          `json:"alerts"`
	Refreshed time.Time    `json:"refreshed"`
}

// ServerJSON is one server in StatusOutput.
type ServerJSON struct {
	Name             string   `json:"name"`
	IP               string   `json:"ip"`
	Reachability     string   `json:"reachability"`
	ConnectedUsers   []string `json:"connected_users"`
	AlertUsers       []string `json:"alert_users"`
	RunningProcesses []string `json:"running_processes"`
	RunningServices  []string `json:"running_services"`
	NotRunning       []string `json:"not_running"`
	Error            string   `json:"error,omitempty"`
}

func statusCommand(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyDurations(s, "", statusTimeoutFlag); err != nil {
		return err
	}

	a, err := newApp(s, logger.NewEnvLogger(logPrefix))
	if err != nil {
		return err
	}
	defer a.Close(shutdownGrace)

	if statusFilterFlag != "" {
		matched := a.registry.Filter(statusFilterFlag)
		if len(matched) == 0 {
			return errors.New(errors.ErrRegistry,
				fmt.Sprintf("No servers match '%s'", statusFilterFlag),
				"See the roster with: rdpmon server list")
		}
		a.aggregator.SetRoster(matched)
	}

	started := time.Now()
	var spin *ui.Spinner
	if !statusJSON && isTerminal(out) {
		spin = ui.NewSpinner(os.Stderr, "Probing servers")
		spin.Start()
	}
	n := a.aggregator.RefreshAll(ctx)
	if spin != nil {
		spin.SetLabel(fmt.Sprintf("Probing %d servers", n))
	}
	a.aggregator.Wait()
	if spin != nil {
		spin.SetLabel(fmt.Sprintf("Probed %d servers", n))
		spin.Success()
	}
	statuses := a.aggregator.Statuses()

	if statusJSON {
		return WriteJSONSuccess(out, buildStatusOutput(statuses, started))
	}

	rows := make([]ui.ServerRow, len(statuses))
	alerts := 0
	for i, st := range statuses {
		rows[i] = serverRow(st)
		alerts += len(st.AlertUsers)
	}
	fmt.Fprint(out, ui.RenderServerTable(rows))
	if len(rows) > 0 {
		tr := i18n.New(s.Language)
		fmt.Fprintf(out, "\n%s\n", tr.Tf(i18n.StatusSummary, len(rows), alerts, started.Format("15:04:05")))
	}
	return nil
}

func buildStatusOutput(statuses []monitor.ServerStatus, refreshed time.Time) StatusOutput {
	out := StatusOutput{Servers: make([]ServerJSON, 0, len(statuses)), Refreshed: refreshed}
	for _, st := range statuses {
		down := notRunning(st)
		if down == nil {
			down = []string{}
		}
		out.Servers = append(out.Servers, ServerJSON{
			Name:             st.Name,
			IP:               st.Host,
			Reachability:     st.Reachability.String(),
			ConnectedUsers:   st.ConnectedUsers,
			AlertUsers:       st.AlertUsers,
			RunningProcesses: st.RunningProcesses,
			RunningServices:  st.RunningServices,
			NotRunning:       down,
			Error:            st.Error,
		})
		out.Alerts += len(st.AlertUsers)
	}
	return out
}

// isTerminal reports whether w is a terminal. Buffers never are.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
