package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/probe"
	"github.com/rileyhilliard/rdpmon/internal/registry"
)

// Prober runs one probe. *probe.Executor satisfies it.
type Prober interface {
	Probe(ctx context.Context, t probe.Target) probe.Result
}

// Update is published to subscribers whenever a server's status changes.
type Update struct {
	Name    string
	Status  ServerStatus
	Removed bool
}

// subscriberBuffer is how many updates a slow subscriber can lag behind
// before queued updates start coalescing per server. The newest status of
// every server is always delivered.
const subscriberBuffer = 64

// Aggregator owns the canonical status of every monitored server.
// Probes run in their own goroutines; merges happen under the write lock
// so readers never observe a half-applied result.
type Aggregator struct {
	prober Prober
	log    logger.Logger
	now    func() time.Time
	newID  func() string

	mu          sync.RWMutex
	order       []string
	servers     map[string]*entry
	watched     map[string]struct{}
	lastStarted time.Time
	nextGen     uint64

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int

	inflight sync.WaitGroup
}

// entry pairs a definition with its status. gen changes whenever the
// server is (re)added so late probe results can be recognized.
type entry struct {
	def    registry.ServerDefinition
	status ServerStatus
	gen    uint64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(l logger.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an Aggregator with an empty roster.
func NewAggregator(prober Prober, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		prober:  prober,
		log:     logger.Noop(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		servers: make(map[string]*entry),
		watched: make(map[string]struct{}),
		subs:    make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetRoster reconciles the aggregator with the registry. New servers start
// Unknown, removed servers are dropped and changed watch lists trim the
// running sets. In-flight probes for removed or re-addressed servers are
// discarded when they complete.
func (a *Aggregator) SetRoster(defs []registry.ServerDefinition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	keep := make(map[string]struct{}, len(defs))
	order := make([]string, 0, len(defs))

	for _, def := range defs {
		if _, dup := keep[def.Name]; dup {
			continue
		}
		keep[def.Name] = struct{}{}
		order = append(order, def.Name)
		def = def.Clone()

		e, ok := a.servers[def.Name]
		switch {
		case !ok:
			e = a.newEntry(def)
			a.servers[def.Name] = e
		case e.def.IP != def.IP:
			// Results for the old address no longer apply.
			e.def = def
			e.gen = a.bumpGen()
			e.status = a.blankStatus(def)
		default:
			e.def = def
			e.status.WatchedProcesses = cloneStrings(def.Processes)
			e.status.WatchedServices = cloneStrings(def.Services)
			e.status.RunningProcesses = intersect(def.Processes, e.status.RunningProcesses)
			e.status.RunningServices = intersect(def.Services, e.status.RunningServices)
		}
		a.publish(Update{Name: def.Name, Status: e.status.Clone()})
	}

	for _, name := range a.order {
		if _, ok := keep[name]; !ok {
			delete(a.servers, name)
			a.publish(Update{Name: name, Removed: true})
		}
	}
	a.order = order
}

func (a *Aggregator) newEntry(def registry.ServerDefinition) *entry {
	return &entry{def: def, gen: a.bumpGen(), status: a.blankStatus(def)}
}

func (a *Aggregator) bumpGen() uint64 {
	a.nextGen++
	return a.nextGen
}

func (a *Aggregator) blankStatus(def registry.ServerDefinition) ServerStatus {
	return ServerStatus{
		Name:             def.Name,
		Host:             def.IP,
		WatchedProcesses: cloneStrings(def.Processes),
		WatchedServices:  cloneStrings(def.Services),
		ConnectedUsers:   []string{},
		RunningProcesses: []string{},
		RunningServices:  []string{},
		AlertUsers:       []string{},
		Reachability:     Unknown,
	}
}

// RefreshOne starts a probe for name. It returns false without doing
// anything when the server is unknown or a probe is already in flight.
// It never waits for the probe to finish.
func (a *Aggregator) RefreshOne(ctx context.Context, name string) bool {
	a.mu.Lock()
	e, ok := a.servers[name]
	if !ok || e.status.Refreshing {
		a.mu.Unlock()
		return false
	}

	id := a.newID()
	e.status.Refreshing = true
	e.status.RefreshID = id
	gen := e.gen
	target := probe.Target{
		Name:      e.def.Name,
		Host:      e.def.IP,
		Processes: cloneStrings(e.def.Processes),
		Services:  cloneStrings(e.def.Services),
	}
	a.publish(Update{Name: name, Status: e.status.Clone()})
	a.inflight.Add(1)
	a.mu.Unlock()

	a.log.Debug("refresh %s started (%s)", name, id)

	go func() {
		defer a.inflight.Done()
		res := a.prober.Probe(ctx, target)
		a.merge(name, gen, id, res)
	}()

	return true
}

// RefreshAll stamps the fleet-level start time and dispatches RefreshOne
// for every server. It returns how many probes were started.
func (a *Aggregator) RefreshAll(ctx context.Context) int {
	a.mu.Lock()
	a.lastStarted = a.now()
	names := cloneStrings(a.order)
	a.mu.Unlock()

	started := 0
	for _, name := range names {
		if a.RefreshOne(ctx, name) {
			started++
		}
	}

	a.log.Debug("refresh all: %d of %d servers dispatched", started, len(names))
	return started
}

// merge applies a probe result atomically.
func (a *Aggregator) merge(name string, gen uint64, id string, res probe.Result) {
	a.mu.Lock()
	e, ok := a.servers[name]
	if !ok || e.gen != gen {
		a.mu.Unlock()
		a.log.Debug("refresh %s (%s) discarded: server removed or changed", name, id)
		return
	}

	st := &e.status
	st.Host = e.def.IP
	st.WatchedProcesses = cloneStrings(e.def.Processes)
	st.WatchedServices = cloneStrings(e.def.Services)
	st.Failures = res.Failures

	if res.Err != nil {
		st.ConnectedUsers = []string{ErrorPrefix + res.Err.Summary()}
		st.RunningProcesses = []string{}
		st.RunningServices = []string{}
		st.Reachability = Unreachable
		st.Error = res.Err.Error()
	} else {
		st.ConnectedUsers = cloneStrings(res.Sessions)
		if st.ConnectedUsers == nil {
			st.ConnectedUsers = []string{}
		}
		st.RunningProcesses = intersect(e.def.Processes, res.RunningProcesses)
		st.RunningServices = intersect(e.def.Services, res.RunningServices)
		st.Error = ""
		if len(res.Failures) > 0 {
			st.Error = res.Failures[0].Error()
		}
		if res.Reachable {
			st.Reachability = Reachable
		} else {
			st.Reachability = Unreachable
		}
	}

	st.AlertUsers = computeAlerts(st.ConnectedUsers, a.watched)
	st.LastRefresh = a.now()
	st.Refreshing = false
	snap := st.Clone()
	a.publish(Update{Name: name, Status: snap})
	a.mu.Unlock()

	if res.Err != nil {
		a.log.Warn("refresh %s (%s): %s", name, id, res.Err)
	} else {
		a.log.Debug("refresh %s (%s): %s, %d users, %d alerts", name, id,
			snap.Reachability, len(snap.ConnectedUsers), len(snap.AlertUsers))
	}
}

// UpdateWatchedUsers replaces the watch list and recomputes alerts for
// every server from its current session list. No probe is run.
func (a *Aggregator) UpdateWatchedUsers(users []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.watched = make(map[string]struct{}, len(users))
	for _, u := range users {
		a.watched[u] = struct{}{}
	}

	for _, name := range a.order {
		e := a.servers[name]
		e.status.AlertUsers = computeAlerts(e.status.ConnectedUsers, a.watched)
		a.publish(Update{Name: name, Status: e.status.Clone()})
	}
}

// Status returns a copy of one server's status.
func (a *Aggregator) Status(name string) (ServerStatus, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.servers[name]
	if !ok {
		return ServerStatus{}, false
	}
	return e.status.Clone(), true
}

// Statuses returns copies of every status in roster order.
func (a *Aggregator) Statuses() []ServerStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ServerStatus, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.servers[name].status.Clone())
	}
	return out
}

// LastRefreshStarted is when RefreshAll last ran.
func (a *Aggregator) LastRefreshStarted() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastStarted
}

// Subscribe returns a channel of status updates and a function that
// unsubscribes and closes it. Publishing never waits on a subscriber: one
// that falls behind has its queued updates coalesced so it still receives
// the latest status of every server, in the order the changes were made.
func (a *Aggregator) Subscribe() (<-chan Update, func()) {
	sub := newSubscriber()
	go sub.pump()

	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = sub
	a.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(sub.done)
		})
	}
	return sub.out, cancel
}

// publish queues u for every subscriber. Callers hold a.mu so subscribers
// see changes in the order they were applied.
func (a *Aggregator) publish(u Update) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	for _, sub := range a.subs {
		sub.offer(u)
	}
}

// subscriber queues updates for one Subscribe call; pump drains them into
// out. Past subscriberBuffer entries a new update replaces the last queued
// one for the same server, so the queue never outgrows buffer plus roster.
type subscriber struct {
	mu    sync.Mutex
	queue []Update

	wake chan struct{}
	done chan struct{}
	out  chan Update
}

func newSubscriber() *subscriber {
	return &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Update),
	}
}

func (s *subscriber) offer(u Update) {
	s.mu.Lock()
	if !s.coalesce(u) {
		s.queue = append(s.queue, u)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) coalesce(u Update) bool {
	if len(s.queue) < subscriberBuffer {
		return false
	}
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].Name == u.Name {
			s.queue[i] = u
			return true
		}
	}
	return false
}

func (s *subscriber) next() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Update{}, false
	}
	u := s.queue[0]
	s.queue[0] = Update{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return u, true
}

// pump delivers queued updates until the subscription is cancelled, then
// closes out.
func (s *subscriber) pump() {
	defer close(s.out)

	for {
		u, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- u:
		case <-s.done:
			return
		}
	}
}

// Wait blocks until every in-flight probe has been merged or discarded.
func (a *Aggregator) Wait() {
	a.inflight.Wait()
}
