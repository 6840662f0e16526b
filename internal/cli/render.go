package cli

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
	"github.com/rileyhilliard/rdpmon/internal/ui"
)

// notRunning lists watched processes and services missing from the last
// probe, processes first.
func notRunning(st monitor.ServerStatus) []string {
	var down []string
	for _, p := range st.WatchedProcesses {
		if !st.ProcessRunning(p) {
			down = append(down, p)
		}
	}
	for _, s := range st.WatchedServices {
		if !st.ServiceRunning(s) {
			down = append(down, s)
		}
	}
	return down
}

func serverRow(st monitor.ServerStatus) ui.ServerRow {
	return ui.ServerRow{
		Reachability: st.Reachability.String(),
		Name:         st.Name,
		Host:         st.Host,
		Users:        st.ConnectedUsers,
		Alerts:       st.AlertUsers,
		Down:         notRunning(st),
	}
}

// plainLine renders one completed probe for non-interactive watch output.
func plainLine(tr *i18n.Translator, st monitor.ServerStatus) string {
	host := st.Host
	if host == "" {
		host = tr.T(i18n.NotConfigured)
	}

	users := tr.T(i18n.NoUsers)
	if len(st.ConnectedUsers) > 0 {
		users = strings.Join(st.ConnectedUsers, ", ")
	}

	line := fmt.Sprintf("[%s] %s (%s) %s %s",
		st.LastRefresh.Format("15:04:05"), st.Name, host, tr.T(i18n.ConnectedUsers), users)

	if len(st.AlertUsers) > 0 {
		line += fmt.Sprintf(" | %s %s %s", ui.SymbolAlert, tr.T(i18n.ITDetected), strings.Join(st.AlertUsers, ", "))
	}
	if down := notRunning(st); len(down) > 0 {
		line += fmt.Sprintf(" | %s %s", ui.SymbolFail, strings.Join(down, ", "))
	}
	return line
}
