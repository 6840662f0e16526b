package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/probe"
	"github.com/rileyhilliard/rdpmon/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProber returns canned results per server name. When gated, each probe
// blocks until release is called for that server.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]probe.Result
	targets []probe.Target
	gates   map[string]chan struct{}
	calls   atomic.Int32
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: make(map[string]probe.Result),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeProber) set(name string, r probe.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = r
}

func (f *fakeProber) gate(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[name] = make(chan struct{})
}

func (f *fakeProber) release(name string) {
	f.mu.Lock()
	ch := f.gates[name]
	delete(f.gates, name)
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (f *fakeProber) Probe(ctx context.Context, t probe.Target) probe.Result {
	f.calls.Add(1)
	f.mu.Lock()
	f.targets = append(f.targets, t)
	gate := f.gates[t.Name]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[t.Name]
}

func def(name, ip string, procs, svcs []string) registry.ServerDefinition {
	if procs == nil {
		procs = []string{}
	}
	if svcs == nil {
		svcs = []string{}
	}
	return registry.ServerDefinition{Name: name, IP: ip, Processes: procs, Services: svcs}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAggregator_SetRosterStartsUnknown(t *testing.T) {
	a := NewAggregator(newFakeProber())
	a.SetRoster([]registry.ServerDefinition{
		def("A", "10.0.0.1", []string{"sql.exe"}, nil),
		def("B", "", nil, []string{"Spooler"}),
	})

	all := a.Statuses()
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Name)
	assert.Equal(t, "B", all[1].Name)
	for _, st := range all {
		assert.Equal(t, Unknown, st.Reachability)
		assert.Empty(t, st.ConnectedUsers)
		assert.Empty(t, st.AlertUsers)
		assert.False(t, st.Refreshing)
		assert.True(t, st.LastRefresh.IsZero())
	}
	assert.Equal(t, []string{"sql.exe"}, all[0].WatchedProcesses)
}

func TestAggregator_RefreshOneMergesResult(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{
		Sessions:         []string{"alice", "bob"},
		RunningProcesses: []string{"sql.exe"},
		RunningServices:  []string{"Spooler"},
		Reachable:        true,
	})
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	a := NewAggregator(p, WithClock(fixedClock(now)))
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"sql.exe", "w3wp.exe"}, []string{"Spooler"})})
	a.UpdateWatchedUsers([]string{"bob"})

	require.True(t, a.RefreshOne(context.Background(), "DC01"))
	a.Wait()

	st, ok := a.Status("DC01")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, st.ConnectedUsers)
	assert.Equal(t, []string{"sql.exe"}, st.RunningProcesses)
	assert.Equal(t, []string{"Spooler"}, st.RunningServices)
	assert.Equal(t, []string{"bob"}, st.AlertUsers)
	assert.Equal(t, Reachable, st.Reachability)
	assert.Equal(t, now, st.LastRefresh)
	assert.False(t, st.Refreshing)
	assert.NotEmpty(t, st.RefreshID)
	assert.True(t, st.ProcessRunning("sql.exe"))
	assert.False(t, st.ProcessRunning("w3wp.exe"))
	assert.True(t, st.ServiceRunning("Spooler"))

	require.Len(t, p.targets, 1)
	assert.Equal(t, probe.Target{Name: "DC01", Host: "10.0.0.1", Processes: []string{"sql.exe", "w3wp.exe"}, Services: []string{"Spooler"}}, p.targets[0])
}

func TestAggregator_RefreshOneRejectsInFlight(t *testing.T) {
	p := newFakeProber()
	p.gate("DC01")
	p.set("DC01", probe.Result{Sessions: []string{"alice"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})

	ctx := context.Background()
	require.True(t, a.RefreshOne(ctx, "DC01"))

	st, _ := a.Status("DC01")
	assert.True(t, st.Refreshing)
	assert.False(t, a.RefreshOne(ctx, "DC01"))
	assert.False(t, a.RefreshOne(ctx, "DC01"))
	assert.False(t, a.RefreshOne(ctx, "missing"))

	p.release("DC01")
	a.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
	st, _ = a.Status("DC01")
	assert.False(t, st.Refreshing)
	assert.Equal(t, []string{"alice"}, st.ConnectedUsers)

	// Once merged, a new refresh is accepted again.
	assert.True(t, a.RefreshOne(ctx, "DC01"))
	a.Wait()
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestAggregator_RefreshAllDoesNotWait(t *testing.T) {
	p := newFakeProber()
	p.gate("A")
	p.gate("B")
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAggregator(p, WithClock(fixedClock(started)))
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil), def("B", "10.0.0.2", nil, nil)})

	done := make(chan int)
	go func() { done <- a.RefreshAll(context.Background()) }()

	select {
	case n := <-done:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("RefreshAll blocked on probes")
	}
	assert.Equal(t, started, a.LastRefreshStarted())

	// A second fleet refresh while both are in flight starts nothing.
	assert.Equal(t, 0, a.RefreshAll(context.Background()))

	p.release("A")
	p.release("B")
	a.Wait()
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestAggregator_SessionErrorBecomesSentinel(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{
		Sessions: []string{},
		Err: &probe.Error{
			Host: "10.0.0.1", Query: probe.QuerySessions,
			Reason: probe.ReasonTimeout, Cause: context.DeadlineExceeded,
		},
	})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"sql.exe"}, nil)})
	a.UpdateWatchedUsers([]string{"alice"})

	a.RefreshOne(context.Background(), "DC01")
	a.Wait()

	st, _ := a.Status("DC01")
	require.Len(t, st.ConnectedUsers, 1)
	assert.Equal(t, "Error: timed out", st.ConnectedUsers[0])
	assert.True(t, IsSentinel(st.ConnectedUsers[0]))
	assert.Empty(t, st.RunningProcesses)
	assert.Empty(t, st.RunningServices)
	assert.Empty(t, st.AlertUsers)
	assert.Equal(t, Unreachable, st.Reachability)
	assert.Contains(t, st.Error, "timed out")
}

func TestAggregator_NoResponseIsUnreachableWithoutAlerts(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{
		Sessions: []string{NoResponse},
		Failures: []*probe.Error{{Host: "10.0.0.1", Query: probe.QuerySessions, Reason: probe.ReasonUnreachable}},
	})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})
	a.UpdateWatchedUsers([]string{NoResponse})

	a.RefreshOne(context.Background(), "DC01")
	a.Wait()

	st, _ := a.Status("DC01")
	assert.Equal(t, []string{NoResponse}, st.ConnectedUsers)
	assert.Empty(t, st.AlertUsers)
	assert.Equal(t, Unreachable, st.Reachability)
	require.Len(t, st.Failures, 1)
	assert.NotEmpty(t, st.Error)
}

func TestAggregator_RunningSetsAreSubsetOfWatched(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{
		Sessions:         []string{},
		RunningProcesses: []string{"rogue.exe", "sql.exe"},
		RunningServices:  []string{"Other", "Spooler"},
		Reachable:        true,
	})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"sql.exe"}, []string{"Spooler"})})

	a.RefreshOne(context.Background(), "DC01")
	a.Wait()

	st, _ := a.Status("DC01")
	assert.Equal(t, []string{"sql.exe"}, st.RunningProcesses)
	assert.Equal(t, []string{"Spooler"}, st.RunningServices)
}

func TestAggregator_WatchListShrinkTrimsRunningSets(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{
		RunningProcesses: []string{"a.exe", "b.exe"},
		RunningServices:  []string{"S1"},
		Reachable:        true,
	})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"a.exe", "b.exe"}, []string{"S1"})})
	a.RefreshOne(context.Background(), "DC01")
	a.Wait()

	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"b.exe"}, nil)})

	st, _ := a.Status("DC01")
	assert.Equal(t, []string{"b.exe"}, st.RunningProcesses)
	assert.Empty(t, st.RunningServices)
	assert.Equal(t, []string{"b.exe"}, st.WatchedProcesses)
	assert.Equal(t, Reachable, st.Reachability, "watch-list edits keep the last probe outcome")
}

// A watched list shrinking while a probe is in flight must still hold the
// subset invariant once that probe merges.
func TestAggregator_WatchListShrinkDuringProbe(t *testing.T) {
	p := newFakeProber()
	p.gate("DC01")
	p.set("DC01", probe.Result{RunningProcesses: []string{"a.exe", "b.exe"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"a.exe", "b.exe"}, nil)})

	a.RefreshOne(context.Background(), "DC01")
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", []string{"a.exe"}, nil)})
	p.release("DC01")
	a.Wait()

	st, _ := a.Status("DC01")
	assert.Equal(t, []string{"a.exe"}, st.RunningProcesses)
}

func TestAggregator_RemovedServerResultDiscarded(t *testing.T) {
	p := newFakeProber()
	p.gate("DC01")
	p.set("DC01", probe.Result{Sessions: []string{"alice"}, Reachable: true})
	log := logger.NewBufferLogger()
	a := NewAggregator(p, WithAggregatorLogger(log))
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})

	a.RefreshOne(context.Background(), "DC01")
	a.SetRoster(nil)
	p.release("DC01")
	a.Wait()

	_, ok := a.Status("DC01")
	assert.False(t, ok)
	assert.Empty(t, a.Statuses())
	assert.True(t, log.Contains("discarded"))
}

func TestAggregator_ReAddedServerIgnoresOldProbe(t *testing.T) {
	p := newFakeProber()
	p.gate("DC01")
	p.set("DC01", probe.Result{Sessions: []string{"old"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})

	a.RefreshOne(context.Background(), "DC01")
	a.SetRoster(nil)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})
	p.release("DC01")
	a.Wait()

	st, ok := a.Status("DC01")
	require.True(t, ok)
	assert.Empty(t, st.ConnectedUsers)
	assert.Equal(t, Unknown, st.Reachability)
	assert.False(t, st.Refreshing)
}

func TestAggregator_AddressChangeResetsStatus(t *testing.T) {
	p := newFakeProber()
	p.set("DC01", probe.Result{Sessions: []string{"alice"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.1", nil, nil)})
	a.RefreshOne(context.Background(), "DC01")
	a.Wait()

	a.SetRoster([]registry.ServerDefinition{def("DC01", "10.0.0.2", nil, nil)})

	st, _ := a.Status("DC01")
	assert.Equal(t, "10.0.0.2", st.Host)
	assert.Equal(t, Unknown, st.Reachability)
	assert.Empty(t, st.ConnectedUsers)
}

// Two servers, one watched account logged on to one of them, then the
// account is unwatched without any probe.
func TestAggregator_WatchedUserAlerts(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Sessions: []string{"carlos.ti", "maria"}, Reachable: true})
	p.set("B", probe.Result{Sessions: []string{"joao"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil), def("B", "10.0.0.2", nil, nil)})
	a.UpdateWatchedUsers([]string{"carlos.ti"})

	a.RefreshAll(context.Background())
	a.Wait()

	stA, _ := a.Status("A")
	stB, _ := a.Status("B")
	assert.Equal(t, []string{"carlos.ti"}, stA.AlertUsers)
	assert.Empty(t, stB.AlertUsers)

	calls := p.calls.Load()
	a.UpdateWatchedUsers(nil)

	stA, _ = a.Status("A")
	assert.Empty(t, stA.AlertUsers)
	assert.Equal(t, []string{"carlos.ti", "maria"}, stA.ConnectedUsers)
	assert.Equal(t, calls, p.calls.Load(), "watch-list changes must not probe")
}

func TestAggregator_AlertsAreExactMatch(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Sessions: []string{"Carlos.TI", "carlos.ti", "carlos.ti"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil)})
	a.UpdateWatchedUsers([]string{"carlos.ti"})

	a.RefreshOne(context.Background(), "A")
	a.Wait()

	st, _ := a.Status("A")
	assert.Equal(t, []string{"carlos.ti"}, st.AlertUsers)
}

func TestAggregator_MergeIsIdempotent(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Sessions: []string{"alice"}, RunningProcesses: []string{"a.exe"}, Reachable: true})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewAggregator(p, WithClock(fixedClock(now)))
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", []string{"a.exe"}, nil)})
	a.UpdateWatchedUsers([]string{"alice"})

	a.RefreshOne(context.Background(), "A")
	a.Wait()
	first, _ := a.Status("A")

	a.RefreshOne(context.Background(), "A")
	a.Wait()
	second, _ := a.Status("A")

	first.RefreshID, second.RefreshID = "", ""
	assert.Equal(t, first, second)
}

func TestAggregator_FailedProbeDoesNotAffectOthers(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Err: &probe.Error{Host: "10.0.0.1", Query: probe.QuerySessions, Reason: probe.ReasonUnreachable, Cause: stderrors.New("connection refused")}})
	p.set("B", probe.Result{Sessions: []string{"bob"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil), def("B", "10.0.0.2", nil, nil)})

	assert.Equal(t, 2, a.RefreshAll(context.Background()))
	a.Wait()

	stA, _ := a.Status("A")
	stB, _ := a.Status("B")
	assert.Equal(t, Unreachable, stA.Reachability)
	assert.Equal(t, []string{"Error: connection refused"}, stA.ConnectedUsers)
	assert.Equal(t, Reachable, stB.Reachability)
	assert.Equal(t, []string{"bob"}, stB.ConnectedUsers)
}

func TestAggregator_StatusReturnsCopies(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Sessions: []string{"alice"}, Reachable: true})
	a := NewAggregator(p)
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil)})
	a.RefreshOne(context.Background(), "A")
	a.Wait()

	st, _ := a.Status("A")
	st.ConnectedUsers[0] = "mallory"

	again, _ := a.Status("A")
	assert.Equal(t, []string{"alice"}, again.ConnectedUsers)
}

func TestAggregator_SubscribePublishesLifecycle(t *testing.T) {
	p := newFakeProber()
	p.set("A", probe.Result{Sessions: []string{"alice"}, Reachable: true})
	a := NewAggregator(p)
	updates, cancel := a.Subscribe()
	defer cancel()

	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil)})
	a.RefreshOne(context.Background(), "A")
	a.Wait()
	a.SetRoster(nil)

	var got []Update
	for len(got) < 4 {
		select {
		case u := <-updates:
			got = append(got, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d updates received", len(got))
		}
	}

	assert.Equal(t, Unknown, got[0].Status.Reachability)
	assert.True(t, got[1].Status.Refreshing)
	assert.False(t, got[2].Status.Refreshing)
	assert.Equal(t, []string{"alice"}, got[2].Status.ConnectedUsers)
	assert.True(t, got[3].Removed)
	assert.Equal(t, "A", got[3].Name)
}

func TestAggregator_SubscribeCancelClosesChannel(t *testing.T) {
	a := NewAggregator(newFakeProber())
	updates, cancel := a.Subscribe()
	cancel()
	cancel()

	_, open := <-updates
	assert.False(t, open)

	// Publishing after cancel must not panic.
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil)})
}

func TestAggregator_SlowSubscriberDoesNotBlock(t *testing.T) {
	a := NewAggregator(newFakeProber())
	_, cancel := a.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			a.UpdateWatchedUsers([]string{"x"})
		}
		close(done)
	}()
	a.SetRoster([]registry.ServerDefinition{def("A", "10.0.0.1", nil, nil)})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

// drainLatest reads until the channel stays quiet and returns the last
// update seen per server.
func drainLatest(t *testing.T, updates <-chan Update) map[string]Update {
	t.Helper()
	last := make(map[string]Update)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return last
			}
			last[u.Name] = u
		case <-time.After(200 * time.Millisecond):
			return last
		}
	}
}

func TestAggregator_LaggingSubscriberEndsOnLatestStatus(t *testing.T) {
	p := newFakeProber()
	var defs []registry.ServerDefinition
	for i := 0; i < subscriberBuffer*2+20; i++ {
		name := fmt.Sprintf("SRV%03d", i)
		p.set(name, probe.Result{Sessions: []string{"u" + name}, Reachable: true})
		defs = append(defs, def(name, "10.0.0.1", nil, nil))
	}
	a := NewAggregator(p)
	updates, cancel := a.Subscribe()
	defer cancel()

	a.SetRoster(defs)
	a.RefreshAll(context.Background())
	a.Wait()

	last := drainLatest(t, updates)
	require.Len(t, last, len(defs))
	for _, d := range defs {
		want, ok := a.Status(d.Name)
		require.True(t, ok)
		assert.Equal(t, want, last[d.Name].Status, d.Name)
		assert.False(t, last[d.Name].Status.Refreshing, d.Name)
	}

	a.SetRoster(defs[:10])
	last = drainLatest(t, updates)
	for i, d := range defs {
		if i < 10 {
			assert.False(t, last[d.Name].Removed, d.Name)
			continue
		}
		assert.True(t, last[d.Name].Removed, d.Name)
	}
}

func TestAggregator_ConcurrentReadsDuringRefresh(t *testing.T) {
	p := newFakeProber()
	names := []string{"A", "B", "C", "D"}
	var defs []registry.ServerDefinition
	for _, n := range names {
		p.set(n, probe.Result{Sessions: []string{"u-" + n}, RunningProcesses: []string{"x.exe"}, Reachable: true})
		defs = append(defs, def(n, "10.0.0.1", []string{"x.exe"}, nil))
	}
	a := NewAggregator(p)
	a.SetRoster(defs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			for _, st := range a.Statuses() {
				for _, r := range st.RunningProcesses {
					assert.Contains(t, st.WatchedProcesses, r)
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		a.RefreshAll(context.Background())
		a.Wait()
	}
	cancel()
	wg.Wait()

	for _, st := range a.Statuses() {
		assert.Equal(t, []string{"u-" + st.Name}, st.ConnectedUsers)
	}
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(NoResponse))
	assert.True(t, IsSentinel("Error: timed out"))
	assert.False(t, IsSentinel("Error"))
	assert.False(t, IsSentinel("alice"))
}

func TestReachabilityString(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "reachable", Reachable.String())
	assert.Equal(t, "unreachable", Unreachable.String())
}
