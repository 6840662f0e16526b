package ui

// Status glyphs shared by the CLI tables and plain watch output.
const (
	SymbolSuccess  = "✓" // running / done
	SymbolFail     = "✗" // stopped / unreachable
	SymbolPending  = "○" // not probed yet
	SymbolComplete = "●" // reachable
	SymbolAlert    = "⚠" // watched account connected
)
