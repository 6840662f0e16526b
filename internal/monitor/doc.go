// Package monitor keeps the live status of every server in the roster.
//
// The Aggregator owns one ServerStatus per server, starts probes without
// blocking the caller, and merges each result back under its lock. A
// probe that outlived its server (removed, or re-added with a new
// address) is discarded. Subscribers get an Update for every change; one
// that falls behind still ends on the latest status of each server.
//
// The Scheduler calls RefreshAll on a fixed cadence measured from
// absolute deadlines, and TriggerNow restarts that cadence.
package monitor
