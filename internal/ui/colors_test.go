package ui

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestColorConstants(t *testing.T) {
	colors := []lipgloss.Color{
		ColorSuccess, ColorError, ColorWarning, ColorInfo,
		ColorPrimary, ColorSecondary, ColorMuted,
	}
	for _, c := range colors {
		assert.NotEmpty(t, string(c))
	}
}

func TestStylesRenderText(t *testing.T) {
	for _, style := range []lipgloss.Style{SuccessStyle(), ErrorStyle(), WarningStyle(), MutedStyle()} {
		assert.Contains(t, style.Render("text"), "text")
	}
}

func TestPrintHelpers(t *testing.T) {
	DisableColors()

	var buf bytes.Buffer
	PrintSuccess(&buf, "Added server %s", "DC01")
	PrintWarning(&buf, "%d alerts", 2)

	assert.Equal(t, "✓ Added server DC01\n⚠ 2 alerts\n", buf.String())
}
