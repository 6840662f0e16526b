// Package registry holds the monitored server roster and the global IT
// watch list, and persists both after every mutation.
package registry

import (
	"slices"
	"strings"
)

// Bootstrap roster used when nothing has been persisted yet.
const (
	DefaultServerName = "Default Gateway"
	DefaultServerIP   = "192.6.1.1"
)

// ServerDefinition is one monitored server.
type ServerDefinition struct {
	Name      string   `json:"name"`
	IP        string   `json:"ip"`
	Processes []string `json:"processes"`
	Services  []string `json:"services"`
}

// Clone returns a deep copy.
func (d ServerDefinition) Clone() ServerDefinition {
	c := d
	c.Processes = append([]string{}, d.Processes...)
	c.Services = append([]string{}, d.Services...)
	return c
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Servers      []ServerDefinition `json:"servers"`
	WatchedUsers []string           `json:"ti_users"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Servers:      make([]ServerDefinition, len(s.Servers)),
		WatchedUsers: append([]string{}, s.WatchedUsers...),
	}
	for i, d := range s.Servers {
		c.Servers[i] = d.Clone()
	}
	return c
}

// Equal reports whether s and o hold the same servers, in the same order,
// and the same watched users.
func (s Snapshot) Equal(o Snapshot) bool {
	return slices.Equal(s.WatchedUsers, o.WatchedUsers) &&
		slices.EqualFunc(s.Servers, o.Servers, func(a, b ServerDefinition) bool {
			return a.Name == b.Name && a.IP == b.IP &&
				slices.Equal(a.Processes, b.Processes) &&
				slices.Equal(a.Services, b.Services)
		})
}

// DefaultSnapshot is the bootstrap state: one placeholder server and no
// watched users.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Servers: []ServerDefinition{{
			Name:      DefaultServerName,
			IP:        DefaultServerIP,
			Processes: []string{},
			Services:  []string{},
		}},
		WatchedUsers: []string{},
	}
}

// normalizeList trims entries, drops blanks and removes duplicates while
// keeping first-seen order.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
