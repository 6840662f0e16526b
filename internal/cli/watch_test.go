package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/config"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/monitor"
	"github.com/rileyhilliard/rdpmon/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardLogger_WritesUntilClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	log, closeLog := dashboardLogger(&config.Settings{LogFile: path})

	fl, ok := log.(*logger.FileLogger)
	require.True(t, ok, "log_file set should log to a file")

	log.Warn("DC01 unreachable")
	closeLog()
	log.Warn("APP01 unreachable")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DC01 unreachable")
	assert.NotContains(t, string(data), "APP01 unreachable")
	assert.NoError(t, fl.Close())
}

func TestDashboardLogger_NoFile(t *testing.T) {
	log, closeLog := dashboardLogger(&config.Settings{})
	assert.Equal(t, logger.Noop(), log)
	assert.NotPanics(t, closeLog)
}

// addServerElsewhere edits the registry file the way a second rdpmon
// process would.
func addServerElsewhere(t *testing.T, path, name, ip string) {
	t.Helper()
	other, err := registry.Open(registry.NewFileStore(path, nil), nil)
	require.NoError(t, err)
	require.NoError(t, other.AddServer(name, ip))
}

func TestWatch_ReloadsRegistryBeforeEachRefresh(t *testing.T) {
	regPath := setupCLI(t, fleetRegistry)
	s, err := loadSettings()
	require.NoError(t, err)
	useRunner(fleetRunner())
	a, err := newApp(s, logger.Noop())
	require.NoError(t, err)
	defer a.Close(time.Second)

	sched := monitor.NewScheduler(a.aggregator, 50*time.Millisecond, monitor.WithBeforeFire(a.reloadRegistry))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	addServerElsewhere(t, regPath, "NEW01", "10.0.0.9")

	require.Eventually(t, func() bool {
		st, ok := a.aggregator.Status("NEW01")
		return ok && !st.LastRefresh.IsZero()
	}, 3*time.Second, 20*time.Millisecond)
	assert.Len(t, a.aggregator.Statuses(), 3)
}

func TestWatch_FollowsRegistryFile(t *testing.T) {
	regPath := setupCLI(t, fleetRegistry)
	s, err := loadSettings()
	require.NoError(t, err)
	useRunner(fleetRunner())
	a, err := newApp(s, logger.Noop())
	require.NoError(t, err)
	defer a.Close(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.followRegistry(ctx)
	time.Sleep(100 * time.Millisecond)

	addServerElsewhere(t, regPath, "NEW01", "10.0.0.9")

	require.Eventually(t, func() bool {
		_, ok := a.aggregator.Status("NEW01")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatch_CorruptRegistryKeepsRoster(t *testing.T) {
	regPath := setupCLI(t, fleetRegistry)
	s, err := loadSettings()
	require.NoError(t, err)
	useRunner(fleetRunner())
	a, err := newApp(s, logger.Noop())
	require.NoError(t, err)
	defer a.Close(time.Second)

	require.NoError(t, os.WriteFile(regPath, []byte("{half"), 0644))
	a.reloadRegistry()

	assert.Len(t, a.aggregator.Statuses(), 2)
	_, ok := a.aggregator.Status("DC01")
	assert.True(t, ok)
}
