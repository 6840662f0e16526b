package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(" " + m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderServerCards())

	if m.ShowFooter() {
		b.WriteString("\n")
		b.WriteString(m.renderFooter())
	}

	return b.String()
}

// renderHeader renders the title, fleet counts and refresh times.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render(m.tr.T(i18n.Title))

	stats := fmt.Sprintf(" | %d %s", len(m.roster), m.tr.T(i18n.Servers))
	if n := m.AlertCount(); n > 0 {
		stats += " | " + AlertStyle.Render(fmt.Sprintf("%s %d %s", GlyphAlert, n, m.tr.T(i18n.Alerts)))
	}
	stats += " | " + RefreshIndicator(m.tr, m.lastRefresh, m.nextRefresh)

	return HeaderStyle.Render(title + LabelStyle.Render(stats))
}

// RefreshIndicator formats "Last Update: HH:MM:SS | Next: HH:MM:SS".
func RefreshIndicator(tr *i18n.Translator, last, next time.Time) string {
	return fmt.Sprintf("%s: %s | %s: %s",
		tr.T(i18n.LastUpdate), clock(last),
		tr.T(i18n.Next), clock(next))
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Format("15:04:05")
}

// renderServerCards renders the grid of server cards.
func (m Model) renderServerCards() string {
	if len(m.roster) == 0 {
		return LabelStyle.Render(m.tr.T(i18n.NoServers))
	}
	if len(m.visible) == 0 {
		return LabelStyle.Render(m.tr.T(i18n.NoMatches))
	}

	cardWidth := m.calculateCardWidth()

	cards := make([]string, 0, len(m.visible))
	for i, name := range m.visible {
		cards = append(cards, m.renderCard(m.statuses[name], cardWidth, i == m.selected))
	}

	return m.layoutCards(cards, cardWidth)
}

// calculateCardWidth determines the card width for the terminal width.
func (m Model) calculateCardWidth() int {
	if m.width == 0 || m.width >= BreakpointCompact {
		return 38
	}
	if m.width < 20 {
		return 16
	}
	return m.width - 4
}

// layoutCards arranges cards in rows based on terminal width.
func (m Model) layoutCards(cards []string, cardWidth int) string {
	cardsPerRow := 1
	if m.width > 0 {
		// card margin + border
		cardsPerRow = m.width / (cardWidth + 3)
		if cardsPerRow < 1 {
			cardsPerRow = 1
		}
	}

	var rows []string
	for i := 0; i < len(cards); i += cardsPerRow {
		end := i + cardsPerRow
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderFooter renders the keyboard hints.
func (m Model) renderFooter() string {
	if m.filtering {
		return FooterStyle.Render("enter apply | esc clear")
	}
	hints := []string{
		"q " + m.tr.T(i18n.Quit),
		"r " + m.tr.T(i18n.Refresh),
		"R " + m.tr.T(i18n.RefreshOne),
		"↑↓ " + m.tr.T(i18n.Select),
		"/ " + m.tr.T(i18n.Filter),
		"s " + m.sortOrder.String(),
		"? " + m.tr.T(i18n.Help),
	}
	return FooterStyle.Render(strings.Join(hints, " | "))
}
