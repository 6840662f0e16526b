package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/logger"
)

// Registry is the only owner of the server roster and the watched-user
// list. Every mutation is persisted before it becomes visible; if the save
// fails the change is rolled back.
type Registry struct {
	store Store
	log   logger.Logger

	mu      sync.RWMutex
	order   []string
	servers map[string]ServerDefinition
	watched []string

	// notifyMu keeps observer calls in mutation order.
	notifyMu  sync.Mutex
	observers []func(Snapshot)
}

// Open loads the registry from store.
func Open(store Store, log logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Noop()
	}

	snap, err := store.Load()
	if err != nil {
		return nil, err
	}

	r := &Registry{store: store, log: log}
	r.restore(snap)
	log.Debug("registry loaded: %d servers, %d watched users", len(r.order), len(r.watched))
	return r, nil
}

// OnChange registers fn to be called with the new state after every
// persisted mutation. fn must not mutate the registry.
func (r *Registry) OnChange(fn func(Snapshot)) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observers = append(r.observers, fn)
}

// Snapshot returns a copy of the whole state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Servers returns copies of every definition in roster order.
func (r *Registry) Servers() []ServerDefinition {
	return r.Snapshot().Servers
}

// Server returns a copy of one definition.
func (r *Registry) Server(name string) (ServerDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.servers[name]
	if !ok {
		return ServerDefinition{}, false
	}
	return def.Clone(), true
}

// WatchedUsers returns a copy of the watched-user list.
func (r *Registry) WatchedUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.watched...)
}

// Filter returns the definitions whose name contains substr,
// case-insensitively. An empty substr matches everything.
func (r *Registry) Filter(substr string) []ServerDefinition {
	needle := strings.ToLower(strings.TrimSpace(substr))
	all := r.Servers()
	if needle == "" {
		return all
	}

	out := make([]ServerDefinition, 0, len(all))
	for _, def := range all {
		if strings.Contains(strings.ToLower(def.Name), needle) {
			out = append(out, def)
		}
	}
	return out
}

// AddServer appends a server with empty watch lists. The address is not
// checked; an empty ip is allowed and reported at the next refresh.
func (r *Registry) AddServer(name, ip string) error {
	name = strings.TrimSpace(name)
	ip = strings.TrimSpace(ip)

	return r.mutate(func() error {
		if name == "" {
			return errors.New(errors.ErrRegistry,
				"Server name can't be empty",
				"Pass a name, e.g. rdpmon server add DC01 10.0.0.5")
		}
		if _, exists := r.servers[name]; exists {
			return errors.New(errors.ErrRegistry,
				fmt.Sprintf("Server '%s' already exists", name),
				"Names are unique. Remove it first to change its address.")
		}
		r.servers[name] = ServerDefinition{Name: name, IP: ip, Processes: []string{}, Services: []string{}}
		r.order = append(r.order, name)
		return nil
	})
}

// RemoveServer deletes a server.
func (r *Registry) RemoveServer(name string) error {
	return r.mutate(func() error {
		if _, ok := r.servers[name]; !ok {
			return unknownServer(name)
		}
		delete(r.servers, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

// SetWatchedProcesses replaces a server's watched process list.
func (r *Registry) SetWatchedProcesses(name string, processes []string) error {
	return r.mutate(func() error {
		def, ok := r.servers[name]
		if !ok {
			return unknownServer(name)
		}
		def.Processes = normalizeList(processes)
		r.servers[name] = def
		return nil
	})
}

// SetWatchedServices replaces a server's watched service list.
func (r *Registry) SetWatchedServices(name string, services []string) error {
	return r.mutate(func() error {
		def, ok := r.servers[name]
		if !ok {
			return unknownServer(name)
		}
		def.Services = normalizeList(services)
		r.servers[name] = def
		return nil
	})
}

// SetWatchedUsers replaces the global watched-user list.
func (r *Registry) SetWatchedUsers(users []string) error {
	return r.mutate(func() error {
		r.watched = normalizeList(users)
		return nil
	})
}

// AddWatchedUser appends one account to the watched-user list.
// Adding an account that is already watched is a no-op.
func (r *Registry) AddWatchedUser(user string) error {
	user = strings.TrimSpace(user)
	return r.mutate(func() error {
		if user == "" {
			return errors.New(errors.ErrRegistry, "User name can't be empty", "")
		}
		r.watched = normalizeList(append(r.watched, user))
		return nil
	})
}

// RemoveWatchedUser drops one account from the watched-user list.
func (r *Registry) RemoveWatchedUser(user string) error {
	return r.mutate(func() error {
		for i, u := range r.watched {
			if u == user {
				r.watched = append(r.watched[:i:i], r.watched[i+1:]...)
				return nil
			}
		}
		return errors.New(errors.ErrRegistry,
			fmt.Sprintf("'%s' is not on the IT watch list", user),
			"See the list with: rdpmon users list")
	})
}

// mutate applies fn, saves the result and notifies observers. On a save
// failure the previous state is restored.
func (r *Registry) mutate(fn func() error) error {
	r.mu.Lock()
	prev := r.snapshotLocked()

	if err := fn(); err != nil {
		r.restore(prev)
		r.mu.Unlock()
		return err
	}

	next := r.snapshotLocked()
	if err := r.store.Save(next); err != nil {
		r.restore(prev)
		r.mu.Unlock()
		r.log.Error("registry save failed, change rolled back: %v", err)
		return err
	}

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	for _, fn := range r.observers {
		fn(next.Clone())
	}
	return nil
}

// Reload re-reads the store and applies changes made by another process,
// notifying observers when anything differs. On a read error the current
// state is kept.
func (r *Registry) Reload() (bool, error) {
	read := r.store.Load
	if strict, ok := r.store.(interface{ Read() (Snapshot, error) }); ok {
		read = strict.Read
	}
	snap, err := read()
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	prev := r.snapshotLocked()
	r.restore(snap)
	next := r.snapshotLocked()
	if prev.Equal(next) {
		r.mu.Unlock()
		return false, nil
	}

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.log.Info("registry changed on disk: %d servers, %d watched users", len(next.Servers), len(next.WatchedUsers))
	for _, fn := range r.observers {
		fn(next.Clone())
	}
	return true, nil
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := Snapshot{
		Servers:      make([]ServerDefinition, 0, len(r.order)),
		WatchedUsers: append([]string{}, r.watched...),
	}
	for _, name := range r.order {
		snap.Servers = append(snap.Servers, r.servers[name].Clone())
	}
	return snap
}

func (r *Registry) restore(snap Snapshot) {
	r.order = make([]string, 0, len(snap.Servers))
	r.servers = make(map[string]ServerDefinition, len(snap.Servers))
	for _, def := range snap.Servers {
		if _, dup := r.servers[def.Name]; dup {
			continue
		}
		r.servers[def.Name] = def.Clone()
		r.order = append(r.order, def.Name)
	}
	r.watched = append([]string{}, snap.WatchedUsers...)
}

func unknownServer(name string) error {
	return errors.New(errors.ErrRegistry,
		fmt.Sprintf("No server named '%s'", name),
		"See the roster with: rdpmon server list")
}
