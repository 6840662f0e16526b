package cli

import (
	"context"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/config"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
	"github.com/rileyhilliard/rdpmon/internal/probe"
	"github.com/rileyhilliard/rdpmon/internal/registry"
	"github.com/rileyhilliard/rdpmon/pkg/sshutil"
)

// logPrefix tags every log line written by the CLI.
const logPrefix = "rdpmon"

// app carries what a monitoring command needs: settings, the registry and
// the aggregator wired to it.
type app struct {
	settings   *config.Settings
	registry   *registry.Registry
	aggregator *monitor.Aggregator
	log        logger.Logger

	closeRunner func() error
}

// newRunner picks where query commands execute. Tests replace it with a
// fake.
var newRunner = func(s *config.Settings, log logger.Logger) (probe.Runner, func() error) {
	if s.Runner.Mode == config.RunnerSSH {
		sshutil.WarningHandler = func(msg string) { log.Warn("%s", msg) }
		r := probe.NewSSHRunner(s.Runner.SSHHost, s.ProbeTimeout, s.Runner.StrictHostKey, s.Runner.MaxSessions)
		log.Debug("queries run on jump host %s, up to %d at a time", s.Runner.SSHHost, s.Runner.MaxSessions)
		return r, r.Close
	}
	return probe.LocalRunner{}, func() error { return nil }
}

// loadSettings reads and validates the settings, applying --registry.
func loadSettings() (*config.Settings, error) {
	s, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if registryFlag != "" {
		s.Registry = registryFlag
	}
	if err := config.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// applyDurations overrides the interval and probe timeout from flags.
// Empty flags leave the settings alone.
func applyDurations(s *config.Settings, interval, timeout string) error {
	if d, err := parseDurationFlag("interval", interval); err != nil {
		return err
	} else if d > 0 {
		s.Interval = d
	}
	if d, err := parseDurationFlag("timeout", timeout); err != nil {
		return err
	} else if d > 0 {
		s.ProbeTimeout = d
	}
	return config.Validate(s)
}

func openRegistry(s *config.Settings, log logger.Logger) (*registry.Registry, error) {
	return registry.Open(registry.NewFileStore(s.Registry, log), log)
}

// newApp opens the registry and builds the probe pipeline. Registry
// changes flow into the aggregator for as long as the app lives.
func newApp(s *config.Settings, log logger.Logger) (*app, error) {
	reg, err := openRegistry(s, log)
	if err != nil {
		return nil, err
	}

	runner, closeRunner := newRunner(s, log)
	exec := probe.NewExecutor(runner,
		probe.WithTimeout(s.ProbeTimeout),
		probe.WithSessionPrefix(s.SessionPrefix),
		probe.WithEncodings(s.EncodingFor),
		probe.WithLogger(log),
	)

	agg := monitor.NewAggregator(exec, monitor.WithAggregatorLogger(log))
	agg.SetRoster(reg.Servers())
	agg.UpdateWatchedUsers(reg.WatchedUsers())

	reg.OnChange(func(snap registry.Snapshot) {
		agg.SetRoster(snap.Servers)
		agg.UpdateWatchedUsers(snap.WatchedUsers)
	})

	return &app{
		settings:    s,
		registry:    reg,
		aggregator:  agg,
		log:         log,
		closeRunner: closeRunner,
	}, nil
}

// followRegistry applies edits that other rdpmon processes make to the
// registry file as soon as they land, until ctx ends.
func (a *app) followRegistry(ctx context.Context) {
	go func() {
		if err := a.registry.Watch(ctx); err != nil {
			a.log.Warn("registry changes will apply at the next refresh: %v", err)
		}
	}()
}

// reloadRegistry re-reads the registry file. It backs followRegistry up
// before every scheduled refresh.
func (a *app) reloadRegistry() {
	if _, err := a.registry.Reload(); err != nil {
		a.log.Warn("keeping the current roster: %v", err)
	}
}

// Close waits up to grace for in-flight probes, then releases the runner.
func (a *app) Close(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		a.aggregator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		a.log.Warn("shutting down with probes still running")
	}
	if err := a.closeRunner(); err != nil {
		a.log.Debug("closing runner: %v", err)
	}
}
