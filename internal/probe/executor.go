// Package probe runs the three administrative queries (sessions, processes,
// services) against one Windows host and turns their output into a Result.
package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/logger"
)

// NoResponse is the single session entry reported when the session query
// produced no output at all.
const NoResponse = "No server response."

// DefaultTimeout bounds each sub-query when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// DefaultSessionPrefix marks remote-desktop rows in qwinsta output.
const DefaultSessionPrefix = "rdp-tcp#"

// Target is an immutable snapshot of what to probe.
type Target struct {
	Name      string
	Host      string
	Processes []string
	Services  []string
}

// Result is the outcome of one probe. Sub-query failures are recorded in
// Failures; Err is set only when the session query itself could not run.
type Result struct {
	// Sessions holds account names, or the single NoResponse entry.
	Sessions []string

	// RunningProcesses and RunningServices keep the order of the Target lists.
	RunningProcesses []string
	RunningServices  []string

	Failures []*Error
	Err      *Error

	// Reachable is true when the session query returned parseable output.
	Reachable bool

	Started  time.Time
	Duration time.Duration
}

// Executor runs probes. It holds no mutable state and is safe for
// concurrent use.
type Executor struct {
	runner      Runner
	timeout     time.Duration
	prefix      string
	encodingFor func(host string) string
	log         logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each sub-query.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSessionPrefix sets the session-name prefix that marks remote-desktop rows.
func WithSessionPrefix(prefix string) Option {
	return func(e *Executor) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithEncodings selects the session output encoding name per host.
func WithEncodings(fn func(host string) string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.encodingFor = fn
		}
	}
}

// WithLogger sets the logger for sub-query diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor creates an Executor running commands through runner.
func NewExecutor(runner Runner, opts ...Option) *Executor {
	e := &Executor{
		runner:      runner,
		timeout:     DefaultTimeout,
		prefix:      DefaultSessionPrefix,
		encodingFor: func(string) string { return "utf-8" },
		log:         logger.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probe queries t.Host. The session, process and service groups run
// concurrently; a failure in one never aborts the others.
func (e *Executor) Probe(ctx context.Context, t Target) Result {
	start := time.Now()

	host := strings.TrimSpace(t.Host)
	if host == "" {
		err := &Error{Host: t.Name, Query: "probe", Reason: ReasonUnreachable, Cause: errNoHost}
		return Result{
			RunningProcesses: []string{},
			RunningServices:  []string{},
			Failures:         []*Error{err},
			Err:              err,
			Started:          start,
			Duration:         time.Since(start),
		}
	}

	var (
		wg       sync.WaitGroup
		sessions sessionOutcome
		procs    groupOutcome
		svcs     groupOutcome
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		sessions = e.querySessions(ctx, host)
	}()
	go func() {
		defer wg.Done()
		procs = e.queryGroup(ctx, host, t.Processes, ProcessCommand, ProcessRunning)
	}()
	go func() {
		defer wg.Done()
		svcs = e.queryGroup(ctx, host, t.Services, ServiceCommand, func(out, _ string) bool {
			return ServiceRunning(out)
		})
	}()
	wg.Wait()

	res := Result{
		Sessions:         sessions.users,
		RunningProcesses: procs.running,
		RunningServices:  svcs.running,
		Err:              sessions.fatal,
		Reachable:        sessions.reachable,
		Started:          start,
		Duration:         time.Since(start),
	}
	res.Failures = append(res.Failures, sessions.failures...)
	res.Failures = append(res.Failures, procs.failures...)
	res.Failures = append(res.Failures, svcs.failures...)

	e.log.Debug("probe %s (%s): %d sessions, %d/%d processes, %d/%d services, %d failures in %s",
		t.Name, host, len(res.Sessions), len(res.RunningProcesses), len(t.Processes),
		len(res.RunningServices), len(t.Services), len(res.Failures), res.Duration.Round(time.Millisecond))

	return res
}

type sessionOutcome struct {
	users     []string
	reachable bool
	fatal     *Error
	failures  []*Error
}

func (e *Executor) querySessions(ctx context.Context, host string) sessionOutcome {
	cmd := SessionCommand(host)

	raw, err := e.run(ctx, cmd)
	if err != nil {
		f := classify(host, QuerySessions, err)
		e.log.Warn("%s", f)
		return sessionOutcome{fatal: f, failures: []*Error{f}}
	}

	enc, err := LookupEncoding(e.encodingFor(host))
	if err != nil {
		e.log.Warn("host %s: %v, falling back to utf-8", host, err)
		enc, _ = LookupEncoding("utf-8")
	}

	text, err := decode(enc, raw)
	if err != nil {
		f := &Error{Host: host, Query: QuerySessions, Reason: ReasonMalformedOutput, Cause: err}
		return sessionOutcome{users: []string{}, failures: []*Error{f}}
	}

	if strings.TrimSpace(text) == "" {
		f := &Error{Host: host, Query: QuerySessions, Reason: ReasonUnreachable, Cause: errNoResponse}
		return sessionOutcome{users: []string{NoResponse}, failures: []*Error{f}}
	}

	users, malformed := ParseSessions(text, e.prefix)
	out := sessionOutcome{users: users, reachable: true}
	if malformed > 0 {
		out.failures = append(out.failures, &Error{
			Host:   host,
			Query:  QuerySessions,
			Reason: ReasonMalformedOutput,
			Cause:  fmt.Errorf("%d session row(s) without an account", malformed),
		})
	}
	return out
}

type groupOutcome struct {
	running  []string
	failures []*Error
}

// queryGroup runs one command per name sequentially. A failed sub-call
// reports that name as not running.
func (e *Executor) queryGroup(
	ctx context.Context,
	host string,
	names []string,
	build func(host, name string) Command,
	running func(output, name string) bool,
) groupOutcome {
	out := groupOutcome{running: []string{}}

	for _, name := range names {
		cmd := build(host, name)
		raw, err := e.run(ctx, cmd)
		if err != nil {
			f := classify(host, cmd.Name+" "+name, err)
			e.log.Debug("%s", f)
			out.failures = append(out.failures, f)
			continue
		}
		if running(string(raw), name) {
			out.running = append(out.running, name)
		}
	}

	return out
}

func (e *Executor) run(ctx context.Context, cmd Command) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.runner.Run(ctx, cmd)
}
