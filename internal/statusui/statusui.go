// Package statusui is a live terminal viewer over the State/Event Bus
// (spec §4.11): one row per configuration, updated as running transitions
// arrive. Grounded on the teacher's generic bubbletea selector
// (lib/selector.go) for styling/keybindings and its bubbles/table use for
// tabular rendering, repurposed from a one-shot pick into a continuously
// refreshing status table.
package statusui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kftray/kftray-core/internal/eventbus"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Margin(1, 0)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Margin(1, 0)

	tableColumns = []table.Column{
		{Title: "STATUS", Width: 8},
		{Title: "CONFIG", Width: 10},
	}
)

// eventMsg wraps one bus event as a tea.Msg.
type eventMsg eventbus.Event

// closedMsg signals the subscription channel closed (bus torn down).
type closedMsg struct{}

// Model is the bubbletea model driving the status table.
type Model struct {
	events    <-chan eventbus.Event
	unsub     func()
	running   map[int64]bool
	quitting  bool
}

// New builds a Model subscribed to bus with the given channel buffer size.
func New(bus *eventbus.Bus, bufferSize int) Model {
	events, unsub := bus.Subscribe(bufferSize)
	return Model{
		events:  events,
		unsub:   unsub,
		running: make(map[int64]bool),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(evt)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			if m.unsub != nil {
				m.unsub()
			}
			return m, tea.Quit
		}

	case eventMsg:
		m.running[msg.ConfigID] = msg.Running
		return m, m.waitForEvent()

	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := headerStyle.Render("kftray forward status")

	if len(m.running) == 0 {
		return header + "\nno active configurations\n" + footerStyle.Render("q: quit")
	}

	ids := make([]int64, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		status := stoppedStyle.Render("○ stopped")
		if m.running[id] {
			status = runningStyle.Render("● running")
		}
		rows = append(rows, table.Row{status, configLabel(id)})
	}

	t := table.New(
		table.WithColumns(tableColumns),
		table.WithRows(rows),
		table.WithHeight(len(rows)),
		table.WithFocused(false),
	)

	return header + "\n" + t.View() + "\n" + footerStyle.Render("q: quit")
}

func configLabel(id int64) string {
	return fmt.Sprintf("config %d", id)
}
