package monitor

import (
	"time"

	"github.com/rileyhilliard/rdpmon/internal/probe"
)

// Reachability is the explicit probe outcome for a server.
type Reachability int

const (
	// Unknown means the server has not finished a probe yet.
	Unknown Reachability = iota
	// Reachable means the last session query returned parseable output.
	Reachable
	// Unreachable means the last probe failed or got no response.
	Unreachable
)

// String returns a human-readable reachability.
func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Session list sentinels. They never count as account names for alerts.
const (
	NoResponse  = probe.NoResponse
	ErrorPrefix = "Error: "
)

// ServerStatus is the aggregated state of one server. Values returned by
// the Aggregator are deep copies and safe to keep.
type ServerStatus struct {
	Name string
	Host string

	// WatchedProcesses and WatchedServices are the lists the last merge was
	// checked against, so readers can render not-running entries.
	WatchedProcesses []string
	WatchedServices  []string

	ConnectedUsers   []string
	RunningProcesses []string
	RunningServices  []string
	AlertUsers       []string

	Reachability Reachability
	Error        string
	Failures     []*probe.Error

	LastRefresh time.Time
	Refreshing  bool
	RefreshID   string
}

// Clone returns a deep copy.
func (s ServerStatus) Clone() ServerStatus {
	c := s
	c.WatchedProcesses = cloneStrings(s.WatchedProcesses)
	c.WatchedServices = cloneStrings(s.WatchedServices)
	c.ConnectedUsers = cloneStrings(s.ConnectedUsers)
	c.RunningProcesses = cloneStrings(s.RunningProcesses)
	c.RunningServices = cloneStrings(s.RunningServices)
	c.AlertUsers = cloneStrings(s.AlertUsers)
	if s.Failures != nil {
		c.Failures = make([]*probe.Error, len(s.Failures))
		for i, f := range s.Failures {
			fc := *f
			c.Failures[i] = &fc
		}
	}
	return c
}

// ProcessRunning reports whether name was confirmed running.
func (s ServerStatus) ProcessRunning(name string) bool {
	return contains(s.RunningProcesses, name)
}

// ServiceRunning reports whether name was confirmed running.
func (s ServerStatus) ServiceRunning(name string) bool {
	return contains(s.RunningServices, name)
}

// IsSentinel reports whether a session entry is a placeholder rather than
// an account name.
func IsSentinel(entry string) bool {
	return entry == NoResponse || len(entry) >= len(ErrorPrefix) && entry[:len(ErrorPrefix)] == ErrorPrefix
}

// computeAlerts returns the connected users that are on the watch list,
// in session order. Sentinels never alert.
func computeAlerts(connected []string, watched map[string]struct{}) []string {
	alerts := []string{}
	seen := make(map[string]struct{})
	for _, u := range connected {
		if IsSentinel(u) {
			continue
		}
		if _, ok := watched[u]; !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		alerts = append(alerts, u)
	}
	return alerts
}

// intersect keeps the entries of running that are in watched, in watched order.
func intersect(watched, running []string) []string {
	out := []string{}
	for _, w := range watched {
		if contains(running, w) {
			out = append(out, w)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
