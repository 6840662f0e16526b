// Package cli implements the rdpmon command-line interface.
//
// Each Cobra command is a thin wrapper over a function that takes its
// output writer explicitly, so tests can drive commands without a
// terminal.
//
// # Command Structure
//
//	rdpmon watch                 - Live dashboard (or line output when piped)
//	rdpmon status                - One refresh, then a table or JSON
//	rdpmon server [add|remove|list|processes|services]
//	rdpmon users [list|add|remove|set]
//	rdpmon settings [init|jumphosts]
//	rdpmon version
//
// # Wiring
//
// watch and status build an app: settings from internal/config, the
// registry from internal/registry, and a monitor.Aggregator fed by a
// probe.Executor. The registry's change hook pushes roster and watch-list
// edits into the aggregator. The runner is local unless runner.mode is
// ssh, in which case queries go through the jump host in pkg/sshutil.
//
// Roster and user commands only open the registry.
//
// # Global Flags
//
// --config selects the settings file and --registry overrides the
// registry path from the settings.
package cli
