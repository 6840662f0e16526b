// Package ui renders rdpmon's terminal output: the server status table,
// simple listing tables, the jump-host picker and a one-line spinner.
//
// Colors are ANSI codes so they degrade well on basic terminals:
//
//	ColorSuccess (green)  - reachable servers, completed actions
//	ColorError   (red)    - unreachable servers, stopped processes
//	ColorWarning (yellow) - IT sessions
//	ColorInfo    (cyan)   - spinner, headers
//	ColorMuted   (gray)   - hints and timings
//
// DisableColors switches lipgloss to monochrome, which tests rely on.
package ui
