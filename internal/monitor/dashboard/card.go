package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
)

// renderCard renders one server card.
func (m Model) renderCard(st monitor.ServerStatus, width int, selected bool) string {
	style := CardStyle
	switch {
	case selected:
		style = CardSelectedStyle
	case len(st.AlertUsers) > 0:
		style = CardAlertStyle
	}
	style = style.Width(width)

	innerWidth := width - 4
	if innerWidth < 8 {
		innerWidth = 8
	}

	lines := []string{m.renderNameLine(st, innerWidth)}

	host := st.Host
	if host == "" {
		host = MutedStyle.Render(m.tr.T(i18n.NotConfigured))
	}
	lines = append(lines, LabelStyle.Render("IP: ")+ValueStyle.Render(host))

	if len(st.AlertUsers) > 0 {
		alert := GlyphAlert + " " + m.tr.T(i18n.ITDetected) + " " + strings.Join(st.AlertUsers, ", ")
		lines = append(lines, AlertStyle.Render(truncate(alert, innerWidth)))
	}

	lines = append(lines, "", LabelStyle.Render(m.tr.T(i18n.ConnectedUsers)))
	lines = append(lines, m.renderUsers(st, innerWidth)...)

	if len(st.WatchedProcesses) > 0 {
		lines = append(lines, "", LabelStyle.Render(m.tr.T(i18n.Processes)))
		lines = append(lines, renderWatched(st.WatchedProcesses, st.RunningProcesses, innerWidth)...)
	}
	if len(st.WatchedServices) > 0 {
		lines = append(lines, "", LabelStyle.Render(m.tr.T(i18n.Services)))
		lines = append(lines, renderWatched(st.WatchedServices, st.RunningServices, innerWidth)...)
	}

	return style.Render(strings.Join(lines, "\n"))
}

// renderNameLine renders the reachability glyph and server name, with the
// spinner while a probe is in flight.
func (m Model) renderNameLine(st monitor.ServerStatus, width int) string {
	var glyph string
	switch st.Reachability {
	case monitor.Reachable:
		glyph = RunningStyle.Render(GlyphReachable)
	case monitor.Unreachable:
		glyph = StoppedStyle.Render(GlyphUnreachable)
	default:
		glyph = MutedStyle.Render(GlyphUnknown)
	}

	line := glyph + " " + ServerNameStyle.Render(truncate(st.Name, width-4))
	if st.Refreshing {
		line += " " + m.spinner.View()
	}
	return line
}

// renderUsers renders the session list. Sentinels are shown in the stopped
// color; "Loading..." replaces the list while a probe is in flight.
func (m Model) renderUsers(st monitor.ServerStatus, width int) []string {
	if st.Refreshing {
		return []string{"  " + LoadingStyle.Render(m.tr.T(i18n.Loading))}
	}
	if len(st.ConnectedUsers) == 0 {
		if st.Reachability == monitor.Unknown {
			return []string{"  " + MutedStyle.Render("-")}
		}
		return []string{"  " + MutedStyle.Render(m.tr.T(i18n.NoUsers))}
	}

	alerts := make(map[string]struct{}, len(st.AlertUsers))
	for _, u := range st.AlertUsers {
		alerts[u] = struct{}{}
	}

	out := make([]string, 0, len(st.ConnectedUsers))
	for _, u := range st.ConnectedUsers {
		text := truncate(u, width-2)
		switch {
		case monitor.IsSentinel(u):
			out = append(out, "  "+StoppedStyle.Render(text))
		case isAlert(alerts, u):
			out = append(out, "  "+AlertStyle.Render(text))
		default:
			out = append(out, "  "+ValueStyle.Render(text))
		}
	}
	return out
}

func isAlert(alerts map[string]struct{}, u string) bool {
	_, ok := alerts[u]
	return ok
}

// renderWatched renders a watch list with running entries green and the
// rest red.
func renderWatched(watched, running []string, width int) []string {
	up := make(map[string]struct{}, len(running))
	for _, r := range running {
		up[r] = struct{}{}
	}

	out := make([]string, 0, len(watched))
	for _, w := range watched {
		text := truncate(w, width-4)
		if _, ok := up[w]; ok {
			out = append(out, "  "+RunningStyle.Render(GlyphRunning+" "+text))
		} else {
			out = append(out, "  "+StoppedStyle.Render(GlyphStopped+" "+text))
		}
	}
	return out
}

// truncate shortens s to width display cells, adding an ellipsis.
func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
