package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-focused Bubbles table sized to its rows.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so the first row must not look selected.
	s.Selected = s.Cell

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a plain table for CLI output.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	return NewTable(columns, tableRows).View()
}

// ServerRow is one line of the status table.
type ServerRow struct {
	Reachability string // "reachable", "unreachable" or "unknown"
	Name         string
	Host         string
	Users        []string // connected accounts or a single sentinel entry
	Alerts       []string // watched accounts among Users
	Down         []string // watched processes/services that are not running
}

// RenderServerTable renders fleet status for `rdpmon status`.
func RenderServerTable(rows []ServerRow) string {
	if len(rows) == 0 {
		return "No servers configured"
	}

	okStyle := SuccessStyle()
	errStyle := ErrorStyle()
	warnStyle := WarningStyle().Bold(true)
	mutedStyle := MutedStyle()
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	nameWidth, hostWidth := len("SERVER"), len("ADDRESS")
	for _, r := range rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.Name))
		hostWidth = max(hostWidth, lipgloss.Width(r.Host))
	}
	nameWidth += 2
	hostWidth += 2

	var b strings.Builder
	b.WriteString(headerStyle.Render("  " + padRight("", 3) + padRight("SERVER", nameWidth) + padRight("ADDRESS", hostWidth) + "USERS"))
	b.WriteString("\n")

	for _, r := range rows {
		var icon string
		switch r.Reachability {
		case "reachable":
			icon = okStyle.Render(SymbolComplete)
		case "unreachable":
			icon = errStyle.Render(SymbolFail)
		default:
			icon = mutedStyle.Render(SymbolPending)
		}

		host := r.Host
		if host == "" {
			host = mutedStyle.Render("-")
		}

		users := mutedStyle.Render("-")
		if len(r.Users) > 0 {
			users = strings.Join(r.Users, ", ")
			if r.Reachability == "unreachable" {
				users = errStyle.Render(users)
			}
		}

		b.WriteString("  " + padRight(icon, 3) + padRight(r.Name, nameWidth) + padRight(host, hostWidth) + users + "\n")

		indent := strings.Repeat(" ", 5+nameWidth)
		if len(r.Alerts) > 0 {
			b.WriteString(indent + warnStyle.Render(SymbolAlert+" IT: "+strings.Join(r.Alerts, ", ")) + "\n")
		}
		if len(r.Down) > 0 {
			b.WriteString(indent + errStyle.Render(SymbolFail+" not running: "+strings.Join(r.Down, ", ")) + "\n")
		}
	}

	return b.String()
}

// padRight pads s to width visible cells.
func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
