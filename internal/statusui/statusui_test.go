package statusui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kftray/kftray-core/internal/eventbus"
)

func TestEventUpdatesRunningTable(t *testing.T) {
	bus := eventbus.New()
	m := New(bus, 4)

	updated, cmd := m.Update(eventMsg(eventbus.Event{ConfigID: 1, Running: true}))
	model := updated.(Model)

	assert.True(t, model.running[1])
	require.NotNil(t, cmd)

	view := model.View()
	assert.Contains(t, view, "config 1")
}

func TestQuitKeyStopsTheProgram(t *testing.T) {
	bus := eventbus.New()
	m := New(bus, 4)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	model := updated.(Model)

	assert.True(t, model.quitting)
	require.NotNil(t, cmd)
}

func TestClosedChannelQuits(t *testing.T) {
	bus := eventbus.New()
	m := New(bus, 4)

	updated, cmd := m.Update(closedMsg{})
	model := updated.(Model)

	assert.True(t, model.quitting)
	require.NotNil(t, cmd)
}
