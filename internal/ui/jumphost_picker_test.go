package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJumpHosts = []JumpHost{
	{Alias: "jump01", Hostname: "10.12.80.5", User: "svc-monitor", Detail: "10.12.80.5, user: svc-monitor"},
	{Alias: "jump02", Hostname: "10.12.80.6", Detail: "10.12.80.6"},
}

func TestJumpHostPicker_EnterSelects(t *testing.T) {
	m := NewJumpHostPickerModel(testJumpHosts)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(JumpHostPickerModel)
	_ = cmd

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(JumpHostPickerModel)

	require.NotNil(t, cmd)
	require.NotNil(t, m.Selected())
	assert.Equal(t, "jump02", m.Selected().Alias)
	assert.Empty(t, m.View())
}

func TestJumpHostPicker_QuitCancels(t *testing.T) {
	m := NewJumpHostPickerModel(testJumpHosts)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(JumpHostPickerModel)

	require.NotNil(t, cmd)
	assert.Nil(t, m.Selected())
}

func TestJumpHostPicker_View(t *testing.T) {
	m := NewJumpHostPickerModel(testJumpHosts)
	view := m.View()
	assert.Contains(t, view, "Select the Windows jump host")
	assert.Contains(t, view, "jump01")
}

func TestJumpHostItem_FilterValue(t *testing.T) {
	assert.Equal(t, "jump01 10.12.80.5 svc-monitor", jumpHostItem{host: testJumpHosts[0]}.FilterValue())
	assert.Equal(t, "jump02 10.12.80.6", jumpHostItem{host: testJumpHosts[1]}.FilterValue())
}

func TestPickJumpHost_NoHosts(t *testing.T) {
	got, err := PickJumpHost(nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
