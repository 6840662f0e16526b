package dashboard

import "github.com/charmbracelet/bubbles/key"

// SortOrder defines how servers are ordered on the dashboard.
type SortOrder int

const (
	// SortByRoster keeps registry order.
	SortByRoster SortOrder = iota
	SortByName
	// SortByAlerts puts servers with IT alerts first.
	SortByAlerts
	// SortByReachability puts unreachable servers first.
	SortByReachability
)

const sortOrderCount = 4

// String returns a human-readable label for the sort order.
func (s SortOrder) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByAlerts:
		return "alerts"
	case SortByReachability:
		return "status"
	default:
		return "roster"
	}
}

// Next cycles to the next sort order.
func (s SortOrder) Next() SortOrder {
	return SortOrder((int(s) + 1) % sortOrderCount)
}

type keyMap struct {
	Quit        key.Binding
	RefreshAll  key.Binding
	RefreshOne  key.Binding
	CycleSort   key.Binding
	Prev        key.Binding
	Next        key.Binding
	First       key.Binding
	Last        key.Binding
	Filter      key.Binding
	ClearFilter key.Binding
	ApplyFilter key.Binding
	Help        key.Binding
}

var keys = keyMap{
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q / Ctrl+C", "Quit")),
	RefreshAll:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Refresh all servers")),
	RefreshOne:  key.NewBinding(key.WithKeys("R", "enter"), key.WithHelp("R / Enter", "Refresh selected server")),
	CycleSort:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Cycle sort order")),
	Prev:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up / k", "Select previous server")),
	Next:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down / j", "Select next server")),
	First:       key.NewBinding(key.WithKeys("home"), key.WithHelp("Home", "Select first server")),
	Last:        key.NewBinding(key.WithKeys("end"), key.WithHelp("End", "Select last server")),
	Filter:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "Filter servers by name")),
	ClearFilter: key.NewBinding(key.WithKeys("esc"), key.WithHelp("Esc", "Clear filter / close")),
	ApplyFilter: key.NewBinding(key.WithKeys("enter")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle this help")),
}

// helpBindings is the order shown in the help overlay.
func helpBindings() []key.Binding {
	return []key.Binding{
		keys.Quit, keys.RefreshAll, keys.RefreshOne, keys.CycleSort,
		keys.Prev, keys.Next, keys.First, keys.Last,
		keys.Filter, keys.ClearFilter, keys.Help,
	}
}
