// Package dashboard is the live terminal view of the aggregator. It only
// reads status snapshots and forwards refresh requests; all polling lives
// in the monitor package.
package dashboard

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
)

// Source is the aggregator side of the dashboard. *monitor.Aggregator
// satisfies it.
type Source interface {
	Statuses() []monitor.ServerStatus
	Subscribe() (<-chan monitor.Update, func())
	RefreshOne(ctx context.Context, name string) bool
}

// Schedule is the scheduler side of the dashboard. *monitor.Scheduler
// satisfies it.
type Schedule interface {
	LastRefresh() time.Time
	NextRefresh() time.Time
	TriggerNow()
}

// Width breakpoints for the card grid.
const (
	BreakpointCompact  = 80
	BreakpointStandard = 120
)

// HeightMinimal is the smallest height that still shows the footer.
const HeightMinimal = 24

// clockInterval refreshes the "Last Update | Next" header.
const clockInterval = time.Second

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	ctx      context.Context
	src      Source
	schedule Schedule
	tr       *i18n.Translator

	statuses map[string]monitor.ServerStatus
	roster   []string // aggregator order
	visible  []string // filtered and sorted

	updates     <-chan monitor.Update
	unsubscribe func()

	selected  int
	sortOrder SortOrder
	filter    textinput.Model
	filtering bool
	spinner   spinner.Model

	lastRefresh time.Time
	nextRefresh time.Time

	width    int
	height   int
	showHelp bool
	quitting bool
}

// updateMsg carries one aggregator update into the program.
type updateMsg monitor.Update

// clockMsg triggers a re-read of the scheduler times.
type clockMsg time.Time

// New creates a dashboard over src and schedule. It subscribes to src
// immediately; Close releases the subscription.
func New(ctx context.Context, src Source, schedule Schedule, tr *i18n.Translator) Model {
	if tr == nil {
		tr = i18n.New("en")
	}

	ti := textinput.New()
	ti.Prompt = tr.T(i18n.Search) + " "
	ti.PromptStyle = FilterPromptStyle
	ti.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = LoadingStyle

	updates, cancel := src.Subscribe()

	m := Model{
		ctx:         ctx,
		src:         src,
		schedule:    schedule,
		tr:          tr,
		statuses:    make(map[string]monitor.ServerStatus),
		updates:     updates,
		unsubscribe: cancel,
		filter:      ti,
		spinner:     sp,
	}
	for _, st := range src.Statuses() {
		m.statuses[st.Name] = st
		m.roster = append(m.roster, st.Name)
	}
	m.readSchedule()
	m.rebuild()
	return m
}

// Close stops receiving aggregator updates.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts listening for updates and the header clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.updates),
		clockCmd(),
		m.spinner.Tick,
	)
}

// waitForUpdate bridges the aggregator channel into a tea message.
func waitForUpdate(ch <-chan monitor.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case updateMsg:
		m.apply(monitor.Update(msg))
		return m, waitForUpdate(m.updates)

	case clockMsg:
		m.readSchedule()
		return m, clockCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch {
		case key.Matches(msg, keys.ClearFilter):
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.rebuild()
			return m, nil
		case key.Matches(msg, keys.ApplyFilter):
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.rebuild()
		return m, cmd
	}

	if key.Matches(msg, keys.Help) {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp && key.Matches(msg, keys.ClearFilter) {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.RefreshAll):
		if m.schedule != nil {
			m.schedule.TriggerNow()
		}

	case key.Matches(msg, keys.RefreshOne):
		if name := m.SelectedServer(); name != "" {
			m.src.RefreshOne(m.ctx, name)
		}

	case key.Matches(msg, keys.CycleSort):
		m.sortOrder = m.sortOrder.Next()
		m.rebuild()

	case key.Matches(msg, keys.Prev):
		if m.selected > 0 {
			m.selected--
		}

	case key.Matches(msg, keys.Next):
		if m.selected < len(m.visible)-1 {
			m.selected++
		}

	case key.Matches(msg, keys.First):
		m.selected = 0

	case key.Matches(msg, keys.Last):
		if len(m.visible) > 0 {
			m.selected = len(m.visible) - 1
		}

	case key.Matches(msg, keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()

	case key.Matches(msg, keys.ClearFilter):
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.rebuild()
		}
	}

	return m, nil
}

// apply folds one aggregator update into the local snapshot.
func (m *Model) apply(u monitor.Update) {
	if u.Removed {
		delete(m.statuses, u.Name)
		for i, n := range m.roster {
			if n == u.Name {
				m.roster = append(m.roster[:i:i], m.roster[i+1:]...)
				break
			}
		}
		m.rebuild()
		return
	}

	if _, known := m.statuses[u.Name]; !known {
		m.roster = append(m.roster, u.Name)
	}
	m.statuses[u.Name] = u.Status
	m.rebuild()
}

func (m *Model) readSchedule() {
	if m.schedule == nil {
		return
	}
	m.lastRefresh = m.schedule.LastRefresh()
	m.nextRefresh = m.schedule.NextRefresh()
}

// rebuild recomputes the visible list and keeps the selection on the same
// server where possible.
func (m *Model) rebuild() {
	current := m.SelectedServer()

	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	visible := make([]string, 0, len(m.roster))
	for _, name := range m.roster {
		if needle == "" || strings.Contains(strings.ToLower(name), needle) {
			visible = append(visible, name)
		}
	}

	rank := make(map[string]int, len(m.roster))
	for i, name := range m.roster {
		rank[name] = i
	}
	st := m.statuses
	sort.SliceStable(visible, func(i, j int) bool {
		a, b := st[visible[i]], st[visible[j]]
		switch m.sortOrder {
		case SortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case SortByAlerts:
			if (len(a.AlertUsers) > 0) != (len(b.AlertUsers) > 0) {
				return len(a.AlertUsers) > 0
			}
		case SortByReachability:
			if reachRank(a.Reachability) != reachRank(b.Reachability) {
				return reachRank(a.Reachability) < reachRank(b.Reachability)
			}
		}
		return rank[a.Name] < rank[b.Name]
	})
	m.visible = visible

	m.selected = 0
	for i, name := range visible {
		if name == current {
			m.selected = i
			break
		}
	}
}

func reachRank(r monitor.Reachability) int {
	switch r {
	case monitor.Unreachable:
		return 0
	case monitor.Unknown:
		return 1
	default:
		return 2
	}
}

// SelectedServer returns the name of the selected server.
func (m Model) SelectedServer() string {
	if m.selected >= 0 && m.selected < len(m.visible) {
		return m.visible[m.selected]
	}
	return ""
}

// Visible returns the names currently shown, in display order.
func (m Model) Visible() []string {
	return append([]string{}, m.visible...)
}

// AlertCount returns how many servers have a watched account logged on.
func (m Model) AlertCount() int {
	n := 0
	for _, st := range m.statuses {
		if len(st.AlertUsers) > 0 {
			n++
		}
	}
	return n
}

// ShowFooter returns true if the terminal is tall enough to show the footer.
func (m Model) ShowFooter() bool {
	return m.height == 0 || m.height >= HeightMinimal
}
