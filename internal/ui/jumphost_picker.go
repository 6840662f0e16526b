package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// JumpHost is a candidate for runner.ssh_host.
type JumpHost struct {
	Alias    string
	Hostname string
	User     string
	Detail   string
}

type jumpHostItem struct {
	host JumpHost
}

func (i jumpHostItem) Title() string       { return i.host.Alias }
func (i jumpHostItem) Description() string { return i.host.Detail }

// FilterValue lets the list filter on alias, hostname and user.
func (i jumpHostItem) FilterValue() string {
	values := []string{i.host.Alias}
	if i.host.Hostname != "" {
		values = append(values, i.host.Hostname)
	}
	if i.host.User != "" {
		values = append(values, i.host.User)
	}
	return strings.Join(values, " ")
}

// JumpHostPickerModel lets the user choose one ~/.ssh/config alias.
type JumpHostPickerModel struct {
	list     list.Model
	selected *JumpHost
	quitting bool
}

var jumpHostPickerKeys = struct {
	Enter key.Binding
	Quit  key.Binding
}{
	Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel")),
}

// NewJumpHostPickerModel builds the picker over hosts.
func NewJumpHostPickerModel(hosts []JumpHost) JumpHostPickerModel {
	items := make([]list.Item, len(hosts))
	for i, h := range hosts {
		items[i] = jumpHostItem{host: h}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderForeground(ColorSecondary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorMuted)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Select the Windows jump host"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	return JumpHostPickerModel{list: l}
}

// Init implements tea.Model.
func (m JumpHostPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m JumpHostPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Keys belong to the filter input while it's open.
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, jumpHostPickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(jumpHostItem); ok {
				m.selected = &item.host
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, jumpHostPickerKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m JumpHostPickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen host, or nil if the picker was cancelled.
func (m JumpHostPickerModel) Selected() *JumpHost {
	return m.selected
}

// PickJumpHost runs the picker on the given terminal streams. It returns
// nil when the user cancels or there is nothing to pick.
func PickJumpHost(hosts []JumpHost, output io.Writer, input io.Reader) (*JumpHost, error) {
	if len(hosts) == 0 {
		return nil, nil
	}

	p := tea.NewProgram(
		NewJumpHostPickerModel(hosts),
		tea.WithOutput(output),
		tea.WithInput(input),
	)

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("jump host picker: %w", err)
	}
	if m, ok := final.(JumpHostPickerModel); ok {
		return m.Selected(), nil
	}
	return nil, nil
}
