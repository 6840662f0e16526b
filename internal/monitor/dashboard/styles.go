package dashboard

import "github.com/charmbracelet/lipgloss"

// Dashboard color palette.
const (
	ColorDarkBg    = lipgloss.Color("#0A0A0F")
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14") // running / reachable
	ColorWarning  = lipgloss.Color("#FFAA00") // refreshing
	ColorCritical = lipgloss.Color("#FF0055") // stopped / unreachable / IT alert

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent = lipgloss.Color("#FF2E97")
	ColorInfo   = lipgloss.Color("#00FFFF")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			MarginRight(1).
			MarginBottom(1)

	CardSelectedStyle = CardStyle.
				BorderForeground(ColorAccent)

	// CardAlertStyle frames servers where a watched account is logged on.
	CardAlertStyle = CardStyle.
			BorderForeground(ColorCritical)

	ServerNameStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	RunningStyle = lipgloss.NewStyle().
			Foreground(ColorHealthy)

	StoppedStyle = lipgloss.NewStyle().
			Foreground(ColorCritical)

	AlertStyle = lipgloss.NewStyle().
			Foreground(ColorCritical).
			Bold(true)

	LoadingStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	FilterPromptStyle = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)
)

// Status glyphs.
const (
	GlyphUnknown     = "◐"
	GlyphReachable   = "◉"
	GlyphUnreachable = "◌"
	GlyphRunning     = "✓"
	GlyphStopped     = "✗"
	GlyphAlert       = "⚠"
)
